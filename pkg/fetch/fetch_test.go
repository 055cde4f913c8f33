package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	if err := os.WriteFile(path, []byte("mode,value\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := New(discard()).Read(context.Background(), path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "mode,value\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestReadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/regions.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("id,name,wkt\n"))
	}))
	defer srv.Close()

	f := New(discard())
	data, err := f.Read(context.Background(), srv.URL+"/regions.csv")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "id,name,wkt\n" {
		t.Errorf("unexpected content %q", data)
	}

	if _, err := f.Read(context.Background(), srv.URL+"/missing.csv"); err == nil {
		t.Error("expected error for 404")
	}
}
