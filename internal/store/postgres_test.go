package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestWorkspaceRoundTripPostgres(t *testing.T) {
	s := NewPostgresStore(openTestDB(t))
	ctx := context.Background()

	user, err := s.EnsureUserByName(ctx, "Ada")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	again, err := s.EnsureUserByName(ctx, "Ada")
	if err != nil {
		t.Fatalf("ensure user again: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected same user id, got %q and %q", user.ID, again.ID)
	}

	if _, err := s.LoadWorkspace(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	first, err := s.SaveWorkspace(ctx, user.ID, []byte(`{"layers":[],"noteGroups":[]}`))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}

	second, err := s.SaveWorkspace(ctx, user.ID, []byte(`{"layers":[{"id":"l1","name":"Base Layer"}]}`))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	loaded, err := s.LoadWorkspace(ctx, user.ID)
	if err != nil {
		t.Fatalf("load workspace: %v", err)
	}
	var got, want any
	if err := json.Unmarshal(loaded.State, &got); err != nil {
		t.Fatalf("decode loaded state: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"layers":[{"id":"l1","name":"Base Layer"}]}`), &want); err != nil {
		t.Fatalf("decode expected state: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected loaded state %s", loaded.State)
	}

	if _, err := s.SaveWorkspace(ctx, user.ID, []byte(`{`)); err == nil {
		t.Fatal("expected malformed state to be rejected")
	}
}

func TestImagesPostgres(t *testing.T) {
	s := NewPostgresStore(openTestDB(t))
	ctx := context.Background()

	user, err := s.EnsureUserByName(ctx, "Grace")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	img, err := s.InsertImage(ctx, ImageRecord{
		UserID:      user.ID,
		Locator:     "blob://pdfpro-images/" + user.ID + "/a.png",
		ContentType: "image/png",
		SizeBytes:   120,
		Width:       4,
		Height:      3,
	})
	if err != nil {
		t.Fatalf("insert image: %v", err)
	}
	if img.ID == "" {
		t.Fatal("expected inserted image to have an id")
	}

	list, err := s.ListImages(ctx, user.ID)
	if err != nil {
		t.Fatalf("list images: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 image, got %d", len(list))
	}
	if list[0].Locator != img.Locator {
		t.Fatalf("expected locator %q, got %q", img.Locator, list[0].Locator)
	}

	owner, err := s.ImageOwner(ctx, img.Locator)
	if err != nil {
		t.Fatalf("image owner: %v", err)
	}
	if owner != user.ID {
		t.Fatalf("expected owner %q, got %q", user.ID, owner)
	}

	if _, err := s.ImageOwner(ctx, "blob://nope/x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown locator, got %v", err)
	}
}

func TestRevokedTokensPostgres(t *testing.T) {
	s := NewPostgresStore(openTestDB(t))
	ctx := context.Background()

	revoked, err := s.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("check revocation: %v", err)
	}
	if revoked {
		t.Fatal("expected token to start unrevoked")
	}

	for i := 0; i < 2; i++ {
		if err := s.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("revoke token (attempt %d): %v", i+1, err)
		}
	}
	revoked, err = s.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("check revocation: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be revoked")
	}
}
