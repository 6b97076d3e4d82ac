package syncjob

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/github"
	"github.com/goliatone/go-integrations/store"
	"github.com/goliatone/go-integrations/store/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type noDelay struct{}

func (noDelay) NextDelay(int) time.Duration { return 0 }

type syncFixture struct {
	runner     *Runner
	manager    *core.CredentialManager
	snapshots  *store.SnapshotStore
	apiCalls   atomic.Int32
	tokenCalls atomic.Int32
	api        http.HandlerFunc
	token      http.HandlerFunc
}

func newSyncFixture(t *testing.T, expiresAt time.Time, accessToken string) *syncFixture {
	t.Helper()
	fixture := &syncFixture{}
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.apiCalls.Add(1)
		fixture.api(w, r)
	}))
	t.Cleanup(apiServer.Close)
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture.tokenCalls.Add(1)
		fixture.token(w, r)
	}))
	t.Cleanup(tokenServer.Close)
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"r2","token_type":"bearer","expires_in":3600}`))
	}

	provider, err := github.New(github.Config{TokenURL: tokenServer.URL, APIBaseURL: apiServer.URL + "/repos"})
	if err != nil {
		t.Fatalf("github provider: %v", err)
	}
	registry, err := core.NewPlatformRegistry(provider)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	kv := memory.NewKVStore()
	credentials, err := store.NewCredentialStore(kv)
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}
	statuses, err := store.NewStatusStore(kv)
	if err != nil {
		t.Fatalf("status store: %v", err)
	}
	fixture.snapshots, err = store.NewSnapshotStore(kv)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}

	cfg := core.DefaultConfig()
	cfg.Platforms["github"] = core.PlatformSettings{ClientID: "client", ClientSecret: "secret"}
	fixture.manager, err = core.NewCredentialManager(cfg, registry,
		core.WithCredentialStore(credentials),
		core.WithStatusStore(statuses),
		core.WithClock(func() time.Time { return fixedNow }),
	)
	if err != nil {
		t.Fatalf("credential manager: %v", err)
	}

	ctx := context.Background()
	if err := credentials.SaveCredential(ctx, core.Credential{
		Platform:     "github",
		AccessToken:  accessToken,
		RefreshToken: "r1",
		TokenType:    "bearer",
		ExpiresAt:    &expiresAt,
		CreatedAt:    fixedNow.Add(-time.Hour),
		UpdatedAt:    fixedNow.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	connectedAt := fixedNow.Add(-time.Hour)
	if err := statuses.SaveStatus(ctx, core.IntegrationStatus{
		Platform:    "github",
		Connected:   true,
		Status:      core.StateConnected,
		AuthType:    core.AuthKindOAuth2,
		ConnectedAt: &connectedAt,
	}); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	fixture.runner, err = NewRunner(registry, fixture.manager, fixture.snapshots,
		WithBackoff(noDelay{}),
		WithClock(func() time.Time { return fixedNow }),
	)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	return fixture
}

func writeApp(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"full_name":"octo/app","stargazers_count":42}`))
}

func TestSyncAppStoresSnapshotAndMarksSynced(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	var gotAuth, gotPath string
	fixture.api = func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeApp(w)
	}

	snapshot, err := fixture.runner.SyncApp(context.Background(), "GitHub", "octo/app")
	if err != nil {
		t.Fatalf("sync app: %v", err)
	}
	if gotAuth != "Bearer valid" || gotPath != "/repos/octo/app" {
		t.Fatalf("unexpected request: auth=%q path=%q", gotAuth, gotPath)
	}
	if snapshot.Platform != "github" || snapshot.AppID != "octo/app" || snapshot.StatusCode != http.StatusOK {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	var payload map[string]any
	if err := json.Unmarshal(snapshot.Payload, &payload); err != nil || payload["full_name"] != "octo/app" {
		t.Fatalf("unexpected payload %s: %v", snapshot.Payload, err)
	}
	if fixture.tokenCalls.Load() != 0 {
		t.Fatalf("expected no refresh for a valid token")
	}

	status, err := fixture.manager.Status(context.Background(), "github")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.LastSync == nil || !status.LastSync.Equal(fixedNow) {
		t.Fatalf("expected last sync %v, got %v", fixedNow, status.LastSync)
	}
	history, err := fixture.runner.Snapshots(context.Background(), "github", "octo/app", 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one snapshot, got %d (%v)", len(history), err)
	}
}

func TestSyncAppRefreshesOnceAfterUnauthorized(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "stale")
	fixture.api = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeApp(w)
	}

	if _, err := fixture.runner.SyncApp(context.Background(), "github", "octo/app"); err != nil {
		t.Fatalf("sync app: %v", err)
	}
	if fixture.apiCalls.Load() != 2 || fixture.tokenCalls.Load() != 1 {
		t.Fatalf("expected 2 api calls and 1 refresh, got %d and %d", fixture.apiCalls.Load(), fixture.tokenCalls.Load())
	}
}

func TestSyncAppFailsAfterSecondUnauthorized(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "stale")
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}

	_, err := fixture.runner.SyncApp(context.Background(), "github", "octo/app")
	if !core.IsKind(err, core.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if fixture.apiCalls.Load() != 2 || fixture.tokenCalls.Load() != 1 {
		t.Fatalf("expected exactly one retry, got %d api calls and %d refreshes", fixture.apiCalls.Load(), fixture.tokenCalls.Load())
	}
	history, _ := fixture.snapshots.List(context.Background(), "github", "octo/app", 0)
	if len(history) != 0 {
		t.Fatalf("expected no snapshot, got %d", len(history))
	}
}

func TestSyncAppRejectedRefreshDisconnects(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(-time.Minute), "expired")
	fixture.token = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		writeApp(w)
	}

	_, err := fixture.runner.SyncApp(context.Background(), "github", "octo/app")
	if !core.IsKind(err, core.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if fixture.apiCalls.Load() != 0 {
		t.Fatalf("expected no api call with a rejected refresh")
	}
	status, err := fixture.manager.Status(context.Background(), "github")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Connected {
		t.Fatalf("expected platform to be disconnected")
	}
	history, _ := fixture.snapshots.List(context.Background(), "github", "octo/app", 0)
	if len(history) != 0 {
		t.Fatalf("expected no snapshot, got %d", len(history))
	}
}

func TestSyncAppRetriesServerErrors(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		if fixture.apiCalls.Load() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeApp(w)
	}

	if _, err := fixture.runner.SyncApp(context.Background(), "github", "octo/app"); err != nil {
		t.Fatalf("sync app: %v", err)
	}
	if fixture.apiCalls.Load() != 3 {
		t.Fatalf("expected 3 api calls, got %d", fixture.apiCalls.Load())
	}
}

func TestSyncAppGivesUpAfterMaxAttempts(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := fixture.runner.SyncApp(context.Background(), "github", "octo/app")
	if !core.IsKind(err, core.KindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if fixture.apiCalls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fixture.apiCalls.Load())
	}
}

func TestSyncAppForbiddenIsNotRetried(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	_, err := fixture.runner.SyncApp(context.Background(), "github", "octo/app")
	if !core.IsKind(err, core.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if fixture.apiCalls.Load() != 1 || fixture.tokenCalls.Load() != 0 {
		t.Fatalf("expected a single call without refresh")
	}
}

func TestSyncAppCoalescesConcurrentCallsForSameApp(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		writeApp(w)
	}

	var wg sync.WaitGroup
	results := make([]core.SyncSnapshot, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = fixture.runner.SyncApp(context.Background(), "github", "octo/app")
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = fixture.runner.SyncApp(context.Background(), "github", "octo/app")
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("unexpected errors: %v %v", errs[0], errs[1])
	}
	if fixture.apiCalls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", fixture.apiCalls.Load())
	}
	if results[0].ID != results[1].ID {
		t.Fatalf("expected callers to share one snapshot")
	}
}

func TestSyncAppFollowerSurvivesLeaderCancellation(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fixture.api = func(w http.ResponseWriter, _ *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		writeApp(w)
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := fixture.runner.SyncApp(leaderCtx, "github", "octo/app")
		leaderDone <- err
	}()
	<-entered

	followerDone := make(chan error, 1)
	var follower core.SyncSnapshot
	go func() {
		var err error
		follower, err = fixture.runner.SyncApp(context.Background(), "github", "octo/app")
		followerDone <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderDone:
		if err == nil {
			t.Fatalf("expected cancelled leader to return an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled leader kept waiting on the shared sync")
	}

	close(release)
	if err := <-followerDone; err != nil {
		t.Fatalf("expected follower to receive the shared result, got %v", err)
	}
	if follower.ID == "" || follower.AppID != "octo/app" {
		t.Fatalf("unexpected follower snapshot %+v", follower)
	}
	if fixture.apiCalls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", fixture.apiCalls.Load())
	}
}

func TestSyncAppValidatesInput(t *testing.T) {
	fixture := newSyncFixture(t, fixedNow.Add(time.Hour), "valid")
	if _, err := fixture.runner.SyncApp(context.Background(), "github", " "); !core.IsKind(err, core.KindBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
	if _, err := fixture.runner.SyncApp(context.Background(), "gitlab", "x"); !core.IsKind(err, core.KindUnsupportedPlatform) {
		t.Fatalf("expected unsupported platform, got %v", err)
	}
}

func TestSnapshotPayloadWrapsNonJSON(t *testing.T) {
	if got := string(snapshotPayload([]byte("plain text"))); got != `"plain text"` {
		t.Fatalf("unexpected payload %s", got)
	}
	if got := string(snapshotPayload(nil)); got != "null" {
		t.Fatalf("unexpected empty payload %s", got)
	}
}
