package store

import (
	"testing"

	"alertdesk/internal/config"
	"alertdesk/test/testutil"
)

func TestNATSStoreContractIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}

	url, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	store, err := NewNATSStore(config.NATSStoreConfig{
		URL:               []string{url},
		Bucket:            "alerts_contract",
		AllowCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("new nats store: %v", err)
	}
	defer store.Close()

	runStoreContract(t, store)
}

func TestNATSStoreMissingBucketWithoutCreate(t *testing.T) {
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}

	url, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	if _, err := NewNATSStore(config.NATSStoreConfig{URL: []string{url}, Bucket: "absent"}); err == nil {
		t.Fatalf("expected error opening absent bucket without create permission")
	}
}
