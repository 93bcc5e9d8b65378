package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/openrds/snowball/internal/store"
)

func TestConsentFormUploadAssignsVersions(t *testing.T) {
	cf := NewConsentForms(store.NewMemory(), testLogger())
	ctx := context.Background()

	v1, err := cf.Upload(ctx, []byte("pdf-one"), "initial IRB approval", "coordinator")
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	v2, err := cf.Upload(ctx, []byte("pdf-two"), "", "")
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if v1 != 1 || v2 != 2 {
		t.Fatalf("versions = %d, %d", v1, v2)
	}

	latest, err := cf.Fetch(ctx, -1)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if latest.Version != 2 || !bytes.Equal(latest.Data, []byte("pdf-two")) {
		t.Fatalf("latest = %+v", latest)
	}
	if latest.Comments != "N/A" || latest.Modifier != "N/A" {
		t.Fatalf("blank metadata must default to N/A, got %+v", latest.ConsentFormMeta)
	}

	first, err := cf.Fetch(ctx, 1)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if first.Version != 1 || !bytes.Equal(first.Data, []byte("pdf-one")) {
		t.Fatalf("version 1 = %+v", first)
	}
}

func TestConsentFormUploadRejectsEmpty(t *testing.T) {
	cf := NewConsentForms(store.NewMemory(), testLogger())
	_, err := cf.Upload(context.Background(), nil, "", "")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestConsentFormFetchMissing(t *testing.T) {
	cf := NewConsentForms(store.NewMemory(), testLogger())
	ctx := context.Background()

	_, err := cf.Fetch(ctx, -1)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found for empty store, got %v", err)
	}

	cf.Upload(ctx, []byte("pdf"), "", "")
	_, err = cf.Fetch(ctx, 9)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("expected not found for missing version, got %v", err)
	}
}

func TestConsentFormHistoryNewestFirst(t *testing.T) {
	cf := NewConsentForms(store.NewMemory(), testLogger())
	ctx := context.Background()
	cf.Upload(ctx, []byte("one"), "a", "x")
	cf.Upload(ctx, []byte("two"), "b", "y")

	metas, err := cf.History(ctx)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(metas) != 2 || metas[0].Version != 2 || metas[1].Version != 1 {
		t.Fatalf("history = %+v", metas)
	}
}
