package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"referral-ledger/logging"
	"referral-ledger/models"

	"go.uber.org/zap"
)

const DefaultAccountsPath = "/api/v1/public/accounts"

// AccountMirror stores accounts mirrored from the profile service.
type AccountMirror interface {
	SyncMirrors(ctx context.Context, accounts []models.Account) (int, error)
	MirrorCursor(ctx context.Context) (time.Time, error)
}

// RemoteAccount matches one entry of the profile service's change feed.
type RemoteAccount struct {
	ID           string    `json:"id"`
	ReferredByID *string   `json:"referred_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type accountChangesResponse struct {
	Accounts []RemoteAccount `json:"accounts"`
}

// AccountSyncWorker polls the profile service for accounts changed since the newest one already
// mirrored. Balances and tiers are owned by the ledger and never come from the feed.
type AccountSyncWorker struct {
	mirror       AccountMirror
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	log          *zap.Logger
}

func NewAccountSyncWorker(mirror AccountMirror, baseURL, serviceToken string, interval time.Duration, log *zap.Logger) *AccountSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AccountSyncWorker{
		mirror:       mirror,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: DefaultAccountsPath,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          logging.OrNop(log).Named("account_sync"),
	}
}

// Start runs the poll loop until ctx is cancelled.
func (w *AccountSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting account sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *AccountSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial account sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("account sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("account sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches one batch of changes and stores it, returning the number of mirrored accounts.
func (w *AccountSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.mirror.MirrorCursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("read sync cursor: %w", err)
	}

	remote, err := w.fetch(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(remote) == 0 {
		w.log.Debug("no account changes", zap.Time("since", since))
		return 0, nil
	}

	accounts := make([]models.Account, 0, len(remote))
	for _, r := range remote {
		if r.ID == "" {
			w.log.Warn("skipping remote account without id")
			continue
		}
		updated := r.UpdatedAt.UTC()
		acc := models.Account{
			ID:              r.ID,
			ReferredByID:    r.ReferredByID,
			RemoteUpdatedAt: &updated,
		}
		acc.CreatedAt = r.CreatedAt.UTC()
		acc.UpdatedAt = updated
		accounts = append(accounts, acc)
	}

	n, err := w.mirror.SyncMirrors(ctx, accounts)
	if err != nil {
		return n, fmt.Errorf("store mirrored accounts: %w", err)
	}
	w.log.Info("accounts synced", zap.Int("received", len(remote)), zap.Int("mirrored", n))
	return n, nil
}

func (w *AccountSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteAccount, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, body)
	}

	var out accountChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync service response: %w", err)
	}
	return out.Accounts, nil
}
