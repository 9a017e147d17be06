package services

import (
	"fmt"
	"testing"
	"time"

	"token-pool-system/models"
)

func TestSourcesAggregatesMostRecentFirst(t *testing.T) {
	db := newTestDB(t)
	sources := NewTokenSourceService(db)
	now := time.Now()

	rows := []models.IntegrityToken{
		{Token: "t1", Source: "harvester-a", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{Token: "t2", Source: "harvester-a", CreatedAt: now.Add(-90 * time.Minute), ExpiresAt: now.Add(-30 * time.Minute)},
		{Token: "t3", Source: "harvester-b", CreatedAt: now.Add(-10 * time.Minute), ExpiresAt: now.Add(50 * time.Minute)},
		{Token: "t4", Source: "", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, // unlabeled, excluded
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}

	summaries, err := sources.Sources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d sources, want 2", len(summaries))
	}
	if summaries[0].ID != "harvester-b" || summaries[1].ID != "harvester-a" {
		t.Fatalf("order = %s,%s, want harvester-b first", summaries[0].ID, summaries[1].ID)
	}
	if summaries[1].TokenCount != 2 {
		t.Errorf("harvester-a count = %d, want 2", summaries[1].TokenCount)
	}
	if summaries[0].MinutesAgo < 9 || summaries[0].MinutesAgo > 11 {
		t.Errorf("harvester-b minutesAgo = %d, want ~10", summaries[0].MinutesAgo)
	}
}

func TestSourceHistoryNewestFirstCapped(t *testing.T) {
	db := newTestDB(t)
	sources := NewTokenSourceService(db)
	now := time.Now()

	for i := 0; i < sourceHistoryLimit+3; i++ {
		row := models.IntegrityToken{
			Token:     fmt.Sprintf("token-%02d", i),
			Source:    "harvester-a",
			CreatedAt: now.Add(time.Duration(i-20) * time.Minute),
			ExpiresAt: now.Add(time.Hour),
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}

	deposits, err := sources.SourceHistory("harvester-a")
	if err != nil {
		t.Fatalf("source history: %v", err)
	}
	if len(deposits) != sourceHistoryLimit {
		t.Fatalf("got %d deposits, want %d", len(deposits), sourceHistoryLimit)
	}
	if deposits[0].Token != "token-12" {
		t.Errorf("first deposit = %q, want the newest token-12", deposits[0].Token)
	}
	for i := 1; i < len(deposits); i++ {
		if deposits[i].Timestamp.After(deposits[i-1].Timestamp) {
			t.Fatalf("deposits not in newest-first order at index %d", i)
		}
	}
}
