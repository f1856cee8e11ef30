package loadmodel

import "testing"

func TestBrokerState_PreallocatedAndHostedBundleKeysDedups(t *testing.T) {
	local := NewLocalBrokerData("http://b1", "pulsar://b1", "v1")
	local.Update(SystemResourceUsage{}, map[string]NamespaceBundleStats{
		"ns1/0x0_0x1": {},
		"ns1/0x1_0x2": {},
	})
	s := NewBrokerState(local)
	s.PreallocatedBundleData["ns1/0x1_0x2"] = NewBundleStats(10, 1000)
	s.PreallocatedBundleData["ns2/0x0_0x1"] = NewBundleStats(10, 1000)

	keys := s.PreallocatedAndHostedBundleKeys()
	if len(keys) != 3 {
		t.Fatalf("keys = %v, want 3 unique bundles", keys)
	}
}

func TestTimeAverageBrokerData_ResetSumsAcrossBundles(t *testing.T) {
	bundleData := map[string]*BundleStats{
		"ns1/0x0_0x1": NewDefaultBundleStats(10, 1000, NamespaceBundleStats{MsgRateIn: 4}),
		"ns1/0x1_0x2": NewDefaultBundleStats(10, 1000, NamespaceBundleStats{MsgRateIn: 6}),
	}
	defaults := NewDefaultBundleStats(10, 1000, NamespaceBundleStats{MsgRateIn: 1})

	var avg TimeAverageBrokerData
	avg.Reset([]string{"ns1/0x0_0x1", "ns1/0x1_0x2", "ns1/0x2_0x3"}, bundleData, defaults)

	if got, want := avg.ShortTerm.MsgRateIn, 4.0+6.0+1.0; got != want {
		t.Fatalf("ShortTerm.MsgRateIn = %v, want %v", got, want)
	}
}
