package coin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"cointipd/internal/models"
)

// fakeDaemon is a minimal JSON-RPC 1.0 endpoint speaking the legacy
// account-model wallet methods.
func fakeDaemon(t *testing.T, handler func(method string, params []json.RawMessage) (interface{}, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Id     interface{}       `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad rpc request: %v", err)
			return
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"id": req.Id, "result": result, "error": nil}
		if rpcErr != "" {
			resp["result"] = nil
			resp["error"] = map[string]interface{}{"code": -1, "message": rpcErr}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func testAccount(t *testing.T, server *httptest.Server) *RPCAccount {
	t.Helper()
	account, err := NewRPCAccount(models.CoinConfig{
		Unit: "btc",
		RPC: models.RPCConfig{
			Host: strings.TrimPrefix(server.URL, "http://"),
			User: "rpcuser",
			Pass: "rpcpass",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(account.Close)
	return account
}

func TestBalance(t *testing.T) {
	server := fakeDaemon(t, func(method string, params []json.RawMessage) (interface{}, string) {
		if method != "getbalance" {
			return nil, "unexpected method " + method
		}
		var user string
		var minconf int
		json.Unmarshal(params[0], &user)
		json.Unmarshal(params[1], &minconf)
		if user != "alice" || minconf != 3 {
			return nil, fmt.Sprintf("unexpected args %s/%d", user, minconf)
		}
		return 1.25, ""
	})
	defer server.Close()

	balance, err := testAccount(t, server).Balance(context.Background(), "alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("got %s, want 1.25", balance)
	}
}

func TestMoveRejected(t *testing.T) {
	server := fakeDaemon(t, func(method string, params []json.RawMessage) (interface{}, string) {
		return false, ""
	})
	defer server.Close()

	err := testAccount(t, server).Move(context.Background(), "alice", "bob", decimal.New(1, 0))
	if err == nil {
		t.Fatal("expected error when daemon rejects move")
	}
}

func TestSendFrom(t *testing.T) {
	server := fakeDaemon(t, func(method string, params []json.RawMessage) (interface{}, string) {
		if method != "sendfrom" {
			return nil, "unexpected method " + method
		}
		var amount float64
		json.Unmarshal(params[2], &amount)
		if amount != 0.5 {
			return nil, fmt.Sprintf("unexpected amount %v", amount)
		}
		return "txid123", ""
	})
	defer server.Close()

	txid, err := testAccount(t, server).SendFrom(context.Background(),
		"alice", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", decimal.RequireFromString("0.5"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if txid != "txid123" {
		t.Errorf("got txid %q, want txid123", txid)
	}
}

func TestValidateAddress(t *testing.T) {
	server := fakeDaemon(t, func(method string, params []json.RawMessage) (interface{}, string) {
		return map[string]interface{}{"isvalid": true}, ""
	})
	defer server.Close()

	valid, err := testAccount(t, server).ValidateAddress(context.Background(), "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("expected address to validate")
	}
}

func TestRPCError(t *testing.T) {
	server := fakeDaemon(t, func(method string, params []json.RawMessage) (interface{}, string) {
		return nil, "wallet locked"
	})
	defer server.Close()

	_, err := testAccount(t, server).Balance(context.Background(), "alice", 1)
	if err == nil {
		t.Fatal("expected rpc error to propagate")
	}
}

func TestPrecheckAddress(t *testing.T) {
	if !PrecheckAddress("btc", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2") {
		t.Error("expected valid mainnet address to pass")
	}
	if PrecheckAddress("btc", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVNX") {
		t.Error("expected bad checksum to fail")
	}
	// Non-bitcoin units rely on their configured pattern upstream.
	if !PrecheckAddress("doge", "DAnythingGoesHere") {
		t.Error("expected non-btc unit to pass through")
	}
}
