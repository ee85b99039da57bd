package exchangerate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConvertUSDToINR(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","conversion_rate":83.25,"conversion_result":4995}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	conversion, err := client.ConvertUSDToINR(context.Background(), 60)
	if err != nil {
		t.Fatalf("ConvertUSDToINR returned error: %v", err)
	}
	if conversion.ConversionResult != 4995 {
		t.Fatalf("expected conversion result 4995, got %f", conversion.ConversionResult)
	}
	if !strings.HasPrefix(gotPath, "/v6/test-key/pair/USD/INR/") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}

func TestConvertUSDToINRAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key")
	if _, err := client.ConvertUSDToINR(context.Background(), 60); err == nil {
		t.Fatal("expected error for API-level failure")
	}
}

func TestConvertUSDToINRServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	if _, err := client.ConvertUSDToINR(context.Background(), 60); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
