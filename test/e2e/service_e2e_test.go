package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"alertdesk/internal/domain"
	"alertdesk/test/testutil"
)

func listAlerts(t *testing.T, baseURL, query string) []domain.Alert {
	t.Helper()
	response, err := http.Get(baseURL + "/alerts" + query)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("list status=%d", response.StatusCode)
	}
	var alerts []domain.Alert
	if err := json.NewDecoder(response.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	return alerts
}

func TestServiceSmokeIngestListAndWebhook(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]any
	)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer webhook.Close()

	port := freePort(t)
	path := writeConfig(t, baseConfig(port)+fmt.Sprintf(`
[store]
backend = "memory"

[notify.webhook]
enabled = true
url = "%s"
template = "{{ upper .Type }} {{ .AlertID }}"
`, webhook.URL))

	service := newServiceFromConfig(t, path)
	cancel, done := runService(t, service)
	defer cancel()
	waitReady(t, port)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	response, err := http.Post(baseURL+"/fraud-alert", "application/json",
		strings.NewReader(`{"trans_num":"tx-1","amt":42.5,"merchant":"Acme","probability":0.97}`))
	if err != nil {
		t.Fatalf("post fraud: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d", response.StatusCode)
	}

	alerts := listAlerts(t, baseURL, "?type=fraud")
	if len(alerts) != 1 || alerts[0].Fraud.TransactionID != "tx-1" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	mu.Lock()
	message, _ := received[0]["message"].(string)
	mu.Unlock()
	if message != "FRAUD "+alerts[0].ID {
		t.Fatalf("webhook message=%q", message)
	}

	cancel()
	waitServiceStop(t, done)
}

func TestServiceNATSIngestToKVStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}
	natsURL, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	port := freePort(t)
	path := writeConfig(t, baseConfig(port)+fmt.Sprintf(`
[store]
backend = "nats"

[store.nats]
url = ["%[1]s"]
bucket = "alertdesk_e2e"
allow_create_bucket = true

[ingest.nats]
enabled = true
url = ["%[1]s"]
subject = "alertdesk.detections"
stream = "ALERTDESK_E2E"
`, natsURL))

	service := newServiceFromConfig(t, path)
	cancel, done := runService(t, service)
	defer cancel()
	waitReady(t, port)

	testutil.PublishDetections(t, natsURL, "alertdesk.detections",
		`{"src_ip":"10.0.0.5","dst_ip":"10.0.0.1","proto":"udp","packets":900,"ts":1735689600}`,
		`{"trans_num":"tx-7","amt":"19.99"}`,
		`{"neither":"fraud nor dos"}`,
	)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitFor(t, 8*time.Second, func() bool {
		return len(listAlerts(t, baseURL, "?limit=10")) == 2
	})
	dos := listAlerts(t, baseURL, "?type=dos")
	if len(dos) != 1 || dos[0].DoS.Length != 900 || !dos[0].Timestamp.Equal(time.Unix(1735689600, 0)) {
		t.Fatalf("unexpected dos alerts %+v", dos)
	}

	cancel()
	waitServiceStop(t, done)
}
