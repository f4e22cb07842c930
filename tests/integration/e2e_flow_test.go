//go:build integration

// Package integration contains end-to-end API flow tests that verify
// the complete journey through the voucher service.
//
// These tests run against the real docker-compose infrastructure and
// test the full API flow without any direct database manipulation.
package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_ImportIssueAuditFlow tests the complete happy path flow:
// 1. Import vouchers into a fresh pool
// 2. Issue a voucher
// 3. Replay the same issue request and get the same voucher back
// 4. Verify the audit trail and voucher counts
func TestE2E_ImportIssueAuditFlow(t *testing.T) {
	pool := uniquePool("e2e")
	defer dropPool(t, pool)

	// Step 1: Import vouchers into a fresh pool
	t.Log("Step 1: Importing vouchers via API")
	importVouchers(t, pool, "imp-1", "operator,denomination,voucher\nTank,red,Tr0\nTank,red,Tr1\nLink,blue,Lb0\n")

	// Step 2: Issue a voucher
	t.Log("Step 2: Issuing a voucher via API")
	issueResp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), map[string]string{
		"transaction_id": "tx-1",
		"user_id":        "u-1",
		"denomination":   "red",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, issueResp.StatusCode, "Should issue a voucher successfully")

	var issued map[string]interface{}
	require.NoError(t, readJSONResponse(issueResp, &issued))
	assert.Equal(t, "req-1", issued["request_id"])
	firstVoucher := issued["voucher"].(string)
	assert.Contains(t, []string{"Tr0", "Tr1"}, firstVoucher)

	// Step 3: Replay the same request
	t.Log("Step 3: Replaying the issue request")
	replayResp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), map[string]string{
		"transaction_id": "tx-1",
		"user_id":        "u-1",
		"denomination":   "red",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, replayResp.StatusCode)

	var replayed map[string]interface{}
	require.NoError(t, readJSONResponse(replayResp, &replayed))
	assert.Equal(t, firstVoucher, replayed["voucher"], "Replay must return the originally issued voucher")
	assert.Equal(t, 1, unusedCount(t, pool, "Tank", "red"), "Replay must not consume a second voucher")

	// Step 4: Audit trail and counts
	t.Log("Step 4: Verifying audit trail and voucher counts")
	auditResp, err := getJSON(formatURL(fmt.Sprintf("/%s/audit_query?field=user_id&value=u-1", pool)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, auditResp.StatusCode)

	var audit map[string]interface{}
	require.NoError(t, readJSONResponse(auditResp, &audit))
	results := audit["results"].([]interface{})
	require.Len(t, results, 1, "One issue request means one audit row, replay included")
	first := results[0].(map[string]interface{})
	assert.Equal(t, "req-1", first["request_id"])
	assert.Equal(t, false, first["error"])

	countsResp, err := getJSON(formatURL(fmt.Sprintf("/%s/voucher_counts", pool)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, countsResp.StatusCode)

	var counts map[string]interface{}
	require.NoError(t, readJSONResponse(countsResp, &counts))
	assert.Len(t, counts["voucher_counts"].([]interface{}), 3, "used and unused Tank/red plus unused Link/blue")
}

// TestE2E_IssueExhaustionIsDurable verifies that running a type dry is
// audited: the failure replays on retry even after a restock.
func TestE2E_IssueExhaustionIsDurable(t *testing.T) {
	pool := uniquePool("exhaust")
	defer dropPool(t, pool)

	importVouchers(t, pool, "imp-1", "operator,denomination,voucher\nTank,red,Tr0\n")

	issueBody := map[string]string{
		"transaction_id": "tx-1",
		"user_id":        "u-1",
		"denomination":   "blue",
	}

	resp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), issueBody)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, readJSONResponse(resp, &result))
	assert.Equal(t, "No voucher available.", result["error"])

	// Restock the missing type, then retry the same request id.
	importVouchers(t, pool, "imp-2", "operator,denomination,voucher\nTank,blue,Tb0\n")

	retryResp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), issueBody)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, retryResp.StatusCode,
		"The audited failure replays; the new voucher is not consumed")

	assert.Equal(t, 1, unusedCount(t, pool, "Tank", "blue"))
}

// TestE2E_IssueMismatchedReplay verifies that reusing a request id with
// different parameters is rejected.
func TestE2E_IssueMismatchedReplay(t *testing.T) {
	pool := uniquePool("mismatch")
	defer dropPool(t, pool)

	importVouchers(t, pool, "imp-1", "operator,denomination,voucher\nTank,red,Tr0\nTank,blue,Tb0\n")

	resp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), map[string]string{
		"transaction_id": "tx-1",
		"user_id":        "u-1",
		"denomination":   "red",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	mismatchResp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), map[string]string{
		"transaction_id": "tx-1",
		"user_id":        "u-1",
		"denomination":   "blue",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, mismatchResp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, readJSONResponse(mismatchResp, &result))
	assert.Equal(t, "This request has already been performed with different parameters.", result["error"])
}

// TestE2E_UnknownPool verifies the 404 taxonomy for pools that were never
// imported into.
func TestE2E_UnknownPool(t *testing.T) {
	pool := uniquePool("never_imported")

	resp, err := putJSON(formatURL(fmt.Sprintf("/%s/issue/Tank/req-1", pool)), map[string]string{
		"transaction_id": "tx-1",
		"user_id":        "u-1",
		"denomination":   "red",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, readJSONResponse(resp, &result))
	assert.Equal(t, "Voucher pool does not exist.", result["error"])
}

// TestE2E_ImportReplay verifies import idempotency by content digest.
func TestE2E_ImportReplay(t *testing.T) {
	pool := uniquePool("reimport")
	defer dropPool(t, pool)

	body := "operator,denomination,voucher\nTank,red,Tr0\nTank,red,Tr1\n"
	importVouchers(t, pool, "imp-1", body)
	importVouchers(t, pool, "imp-1", body) // same request id, same content

	assert.Equal(t, 2, unusedCount(t, pool, "Tank", "red"), "Replayed import must not duplicate vouchers")

	// Same request id, different content.
	resp, err := putCSV(formatURL(fmt.Sprintf("/%s/import/imp-1", pool)),
		"operator,denomination,voucher\nTank,red,Tr9\n")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, readJSONResponse(resp, &result))
	assert.Equal(t, "This request has already been performed with different parameters.", result["error"])
}

// TestE2E_ExportFlow verifies bulk export, its warnings, and its replay.
func TestE2E_ExportFlow(t *testing.T) {
	pool := uniquePool("export")
	defer dropPool(t, pool)

	importVouchers(t, pool, "imp-1",
		"operator,denomination,voucher\nTank,red,Tr0\nTank,red,Tr1\nTank,blue,Tb0\n")

	body := map[string]interface{}{
		"count":         2,
		"operators":     []string{"Tank"},
		"denominations": []string{"red", "blue"},
	}
	resp, err := putJSON(formatURL(fmt.Sprintf("/%s/export/req-E", pool)), body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, readJSONResponse(resp, &result))
	vouchers := result["vouchers"].([]interface{})
	assert.Len(t, vouchers, 3, "two red plus the single blue")
	warnings := result["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	assert.Equal(t, "Insufficient vouchers available for 'Tank' 'blue'.", warnings[0])

	assert.Equal(t, 0, unusedCount(t, pool, "Tank", "red"))

	// Replay returns the same list without consuming anything further.
	replayResp, err := putJSON(formatURL(fmt.Sprintf("/%s/export/req-E", pool)), body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, replayResp.StatusCode)

	var replayed map[string]interface{}
	require.NoError(t, readJSONResponse(replayResp, &replayed))
	assert.Equal(t, result["vouchers"], replayed["vouchers"], "Replay must rehydrate the original voucher list")
	assert.Equal(t, result["warnings"], replayed["warnings"])
}
