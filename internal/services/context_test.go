package services_test

import (
	"context"
	"testing"

	"astrodriz/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, 42)
	ctx = services.WithDataset(ctx, "j8cw03010")
	ctx = services.WithStage(ctx, "align")
	ctx = services.WithMode(ctx, "apriori")
	ctx = services.WithCorrelationID(ctx, "run-123")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if dataset, ok := services.DatasetFromContext(ctx); !ok || dataset != "j8cw03010" {
		t.Fatalf("unexpected dataset: %v %v", dataset, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "align" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if mode, ok := services.ModeFromContext(ctx); !ok || mode != "apriori" {
		t.Fatalf("unexpected mode: %v %v", mode, ok)
	}
	if cid, ok := services.CorrelationIDFromContext(ctx); !ok || cid != "run-123" {
		t.Fatalf("unexpected correlation id: %v %v", cid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
