//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("SNOWBALL_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:8000"
}

// TestEnrollmentFlowIntegration walks one seed through the whole study
// pipeline against a running server: triage, promotion, coupon redemption,
// consent, survey, enrollment completion and peer fan-out.
func TestEnrollmentFlowIntegration(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}
	base := baseURL()

	mrn := fmt.Sprintf("ITEST%d", time.Now().UnixNano())
	firstName := fmt.Sprintf("Flow%d", time.Now().UnixNano())

	var addResp struct {
		Reason string `json:"reason"`
	}
	doPost(t, client, base+"/api/addseed", map[string]any{
		"MRN":           mrn,
		"FIRST_NAME":    firstName,
		"LAST_NAME":     "Integration",
		"EMAIL_ADDRESS": fmt.Sprintf("%s@example.com", strings.ToLower(firstName)),
		"MOBILE_NUM":    "312-555-0100",
	}, &addResp)
	if addResp.Reason != "Successfully inserted a new seed" {
		t.Fatalf("unexpected addseed response: %+v", addResp)
	}

	var statusResp struct {
		Reason string `json:"reason"`
	}
	doPost(t, client, base+"/api/seedstatus", map[string]any{
		"MRN":    mrn,
		"STATUS": "INCLUDE",
	}, &statusResp)
	if statusResp.Reason != "success" {
		t.Fatalf("unexpected seedstatus response: %+v", statusResp)
	}

	var cohortResp struct {
		Records []struct {
			RecordID int    `json:"RECORD_ID"`
			PatName  string `json:"PAT_NAME"`
			Coupon   string `json:"COUPON"`
		} `json:"records"`
	}
	doGet(t, client, base+"/api/cohort", &cohortResp)
	var recordID int
	var coupon string
	for _, row := range cohortResp.Records {
		if row.PatName == "Integration,"+firstName {
			recordID = row.RecordID
			coupon = row.Coupon
		}
	}
	if recordID == 0 || coupon == "" {
		t.Fatalf("promoted participant not found in cohort report")
	}

	var redeemResp struct {
		Records struct {
			RecordID int `json:"RECORD_ID"`
		} `json:"records"`
	}
	doGet(t, client, base+"/api/redeem?coupon="+coupon, &redeemResp)
	if redeemResp.Records.RecordID != recordID {
		t.Fatalf("redeem returned record %d, want %d", redeemResp.Records.RecordID, recordID)
	}

	doPost(t, client, base+"/api/consent", map[string]any{
		"RECORD_ID":       recordID,
		"completed":       true,
		"CONSENT_VERSION": 1,
		"SIGNATURE":       "signed",
	}, nil)
	doPost(t, client, base+"/api/survey", map[string]any{
		"RECORD_ID": recordID,
		"completed": true,
		"Q1":        "yes",
	}, nil)
	doPost(t, client, base+"/api/participants", map[string]any{
		"RECORD_ID": recordID,
		"contacts": []map[string]any{
			{"FIRST_NAME": "Peer", "LAST_NAME": "One", "EMAIL_ADDRESS": "peer.one@example.com"},
		},
	}, nil)
	doPost(t, client, base+"/api/participants", map[string]any{
		"RECORD_ID":            recordID,
		"ENROLLMENT_COMPLETED": "Y",
	}, nil)

	// a closed coupon cannot be redeemed again
	resp, err := client.Get(base + "/api/redeem?coupon=" + coupon)
	if err != nil {
		t.Fatalf("second redeem request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("second redeem status = %d, want 422", resp.StatusCode)
	}

	var inviteResp struct {
		Reason string `json:"reason"`
	}
	doPost(t, client, base+"/api/invitepeer", map[string]any{
		"RECORD_ID": recordID,
	}, &inviteResp)
	if !strings.HasPrefix(inviteResp.Reason, "Successfully sent") {
		t.Fatalf("unexpected invitepeer response: %+v", inviteResp)
	}

	downloadURL := base + "/api/download?type=participants"
	resp, err = client.Get(downloadURL)
	if err != nil {
		t.Fatalf("download request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("download status %d body %s", resp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read download data: %v", err)
	}
	if !strings.Contains(string(csvData), coupon) {
		t.Fatalf("participants export did not contain coupon %s", coupon)
	}
}

func doPost(t *testing.T, client *http.Client, url string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("http post %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	decodeBody(t, resp.Body, url, out)
}

func doGet(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("http get %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	decodeBody(t, resp.Body, url, out)
}

func decodeBody(t *testing.T, r io.Reader, url string, out any) {
	t.Helper()
	if out == nil {
		io.Copy(io.Discard, r)
		return
	}
	if err := json.NewDecoder(r).Decode(out); err != nil && err != io.EOF {
		t.Fatalf("decode response from %s: %v", url, err)
	}
}
