//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/fieldstone/storefront/internal/platform/config"
	pfirestore "github.com/fieldstone/storefront/internal/platform/firestore"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type promotionDoc struct {
	Code     string `firestore:"code"`
	Redeemed int    `firestore:"redeemed"`
}

func TestProviderRoundTrip(t *testing.T) {
	endpoint, containerID := startEmulator(t)
	t.Cleanup(func() { stopEmulator(containerID) })

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "storefront-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if _, err := provider.Client(ctx); err != nil {
		t.Fatalf("client: %v", err)
	}

	repo := pfirestore.NewBaseRepository[promotionDoc](provider, "promotions")

	if err := repo.Set(ctx, "promo_spring", promotionDoc{Code: "SPRING10", Redeemed: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	doc, err := repo.Get(ctx, "promo_spring")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.ID != "promo_spring" || doc.Data.Code != "SPRING10" || doc.Data.Redeemed != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.UpdateTime.IsZero() {
		t.Fatalf("expected server update time")
	}

	if err := repo.Update(ctx, "promo_spring", []firestore.Update{{Path: "redeemed", Value: 2}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err = repo.Get(ctx, "promo_spring")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if doc.Data.Redeemed != 2 {
		t.Fatalf("expected redeemed=2, got %d", doc.Data.Redeemed)
	}

	docs, err := repo.Query(ctx, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}

	_, err = repo.Get(ctx, "promo_absent")
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	var classified interface{ IsNotFound() bool }
	if !errors.As(err, &classified) || !classified.IsNotFound() {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestProviderRunTransaction(t *testing.T) {
	endpoint, containerID := startEmulator(t)
	t.Cleanup(func() { stopEmulator(containerID) })

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "storefront-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[promotionDoc](provider, "promotions")
	if err := repo.Set(ctx, "promo_fall", promotionDoc{Code: "FALL20", Redeemed: 4}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := repo.DocumentRef(ctx, "promo_fall")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var promo promotionDoc
		if err := snap.DataTo(&promo); err != nil {
			return err
		}
		promo.Redeemed++
		return tx.Set(ref, promo)
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	doc, err := repo.Get(ctx, "promo_fall")
	if err != nil {
		t.Fatalf("get after transaction: %v", err)
	}
	if doc.Data.Redeemed != 5 {
		t.Fatalf("expected redeemed=5 after transaction, got %d", doc.Data.Redeemed)
	}

	canceled, stop := context.WithCancel(context.Background())
	stop()
	err = provider.RunTransaction(canceled, func(ctx context.Context, tx *firestore.Transaction) error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// startEmulator boots a Firestore emulator container and blocks until
// its port accepts connections. Skips the test when docker is absent.
func startEmulator(t *testing.T) (endpoint, containerID string) {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()
	endpoint = fmt.Sprintf("127.0.0.1:%d", port)

	out, err := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("start emulator: %v - %s", err, string(out))
	}
	containerID = strings.TrimSpace(string(out))
	if len(containerID) > 12 {
		containerID = containerID[:12]
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return endpoint, containerID
		}
		time.Sleep(250 * time.Millisecond)
	}
	stopEmulator(containerID)
	t.Fatalf("emulator at %s did not become ready", endpoint)
	return "", ""
}

func stopEmulator(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}
