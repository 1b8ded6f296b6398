package browser

import "fmt"

// Kind names a browsable view.
type Kind string

// List kinds.
const (
	KindBundles    Kind = "bundles"
	KindUserOps    Kind = "userops"
	KindBundlers   Kind = "bundlers"
	KindPaymasters Kind = "paymasters"
)

// Detail kinds.
const (
	KindPaymaster Kind = "paymaster"
	KindBundler   Kind = "bundler"
	KindAccount   Kind = "account"
)

// ListKinds are the four resource lists, in dashboard order.
var ListKinds = []Kind{KindBundles, KindUserOps, KindBundlers, KindPaymasters}

// DetailKinds are the single-address views.
var DetailKinds = []Kind{KindPaymaster, KindBundler, KindAccount}

// ParseListKind validates a list kind from a route parameter.
func ParseListKind(s string) (Kind, error) {
	for _, k := range ListKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown list kind %q", s)
}

// ParseDetailKind validates a detail kind from a route parameter.
func ParseDetailKind(s string) (Kind, error) {
	for _, k := range DetailKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown detail kind %q", s)
}

// Title is the heading shown above a view.
func (k Kind) Title() string {
	switch k {
	case KindBundles:
		return "Recent Bundles"
	case KindUserOps:
		return "Recent User Operations"
	case KindBundlers:
		return "Top Bundlers"
	case KindPaymasters:
		return "Top Paymasters"
	case KindPaymaster:
		return "Paymaster"
	case KindBundler:
		return "Bundler"
	case KindAccount:
		return "Account"
	}
	return string(k)
}

// unit is what a detail view's total counts.
func (k Kind) unit() string {
	if k == KindBundler {
		return "Bundles"
	}
	return "User Ops"
}

// detailCaption renders the caption from the last reported total.
func detailCaption(k Kind, total int, known bool) string {
	if !known {
		return fmt.Sprintf("N/A %s found", k.unit())
	}
	return fmt.Sprintf("%d %s found", total, k.unit())
}
