//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	pconfig "github.com/fieldstone/storefront/internal/platform/config"
	pfirestore "github.com/fieldstone/storefront/internal/platform/firestore"
	"github.com/fieldstone/storefront/internal/repositories"
)

func TestStockRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "stock-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewStockRepository(provider)
	if err != nil {
		t.Fatalf("new stock repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seedProduct := map[string]any{
		"name":      "Canvas Tote",
		"basePrice": int64(2400),
		"variants": map[string]any{
			"var_navy_m": map[string]any{
				"color":    "Navy",
				"size":     "M",
				"stock":    5,
				"position": 0,
			},
		},
		"createdAt": now,
		"updatedAt": now,
	}

	if _, err := client.Collection(productsCollection).Doc("prod_tote").Set(ctx, seedProduct); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	result, err := repo.Reserve(ctx, repositories.StockReserveRequest{
		ProductID: "prod_tote",
		VariantID: "var_navy_m",
		Quantity:  3,
		OrderRef:  "order_1",
		Now:       now,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if result.Level.Stock != 2 {
		t.Fatalf("expected stock=2 after reserve, got %d", result.Level.Stock)
	}

	_, err = repo.Reserve(ctx, repositories.StockReserveRequest{
		ProductID: "prod_tote",
		VariantID: "var_navy_m",
		Quantity:  3,
		OrderRef:  "order_2",
		Now:       now.Add(time.Second),
	})
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stockErr.Available != 2 {
		t.Fatalf("expected available=2 in error, got %d", stockErr.Available)
	}

	released, err := repo.Release(ctx, repositories.StockReleaseRequest{
		ProductID: "prod_tote",
		VariantID: "var_navy_m",
		Quantity:  3,
		OrderRef:  "order_1",
		Reason:    "checkout rolled back",
		Now:       now.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Level.Stock != 5 {
		t.Fatalf("expected stock=5 after release, got %d", released.Level.Stock)
	}

	_, err = repo.Reserve(ctx, repositories.StockReserveRequest{
		ProductID: "prod_tote",
		VariantID: "var_missing",
		Quantity:  1,
		Now:       now,
	})
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorVariantNotFound {
		t.Fatalf("expected variant not found, got %v", err)
	}
}

func TestStockRepositoryConcurrentReserve(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "stock-race-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewStockRepository(provider)
	if err != nil {
		t.Fatalf("new stock repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	seedProduct := map[string]any{
		"name":      "Linen Shirt",
		"basePrice": int64(5900),
		"variants": map[string]any{
			"var_white_l": map[string]any{
				"color":    "White",
				"size":     "L",
				"stock":    3,
				"position": 0,
			},
		},
		"createdAt": now,
		"updatedAt": now,
	}
	if _, err := client.Collection(productsCollection).Doc("prod_shirt").Set(ctx, seedProduct); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	// Stock 3, eight callers each wanting 2: the conditional decrement
	// admits exactly one.
	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = repo.Reserve(ctx, repositories.StockReserveRequest{
				ProductID: "prod_shirt",
				VariantID: "var_white_l",
				Quantity:  2,
				OrderRef:  fmt.Sprintf("order_%d", idx),
				Now:       now,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for idx, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var stockErr *repositories.StockError
		if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficientStock {
			t.Fatalf("worker %d: expected insufficient stock, got %v", idx, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful reservation, got %d", winners)
	}

	snap, err := client.Collection(productsCollection).Doc("prod_shirt").Get(ctx)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	var doc struct {
		Variants map[string]struct {
			Stock int `firestore:"stock"`
		} `firestore:"variants"`
	}
	if err := snap.DataTo(&doc); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	remaining := doc.Variants["var_white_l"].Stock
	if remaining != 1 {
		t.Fatalf("expected stock=1 after one reservation of 2, got %d", remaining)
	}
	if remaining < 0 {
		t.Fatalf("stock must never go negative, got %d", remaining)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
