package loadmodel

import "strings"

// NamespaceFromBundle returns the namespace portion of a bundle
// identifier "<namespace>/<bundleRange>" — everything up to the last
// "/".
func NamespaceFromBundle(bundle string) string {
	idx := strings.LastIndex(bundle, "/")
	if idx < 0 {
		return bundle
	}
	return bundle[:idx]
}

// BundleRangeFromBundle returns the hash-range portion of a bundle
// identifier — the substring after the last "/".
func BundleRangeFromBundle(bundle string) string {
	idx := strings.LastIndex(bundle, "/")
	if idx < 0 {
		return bundle
	}
	return bundle[idx+1:]
}

// BundleName joins a namespace and a bundle range back into a bundle
// identifier.
func BundleName(namespace, bundleRange string) string {
	return namespace + "/" + bundleRange
}
