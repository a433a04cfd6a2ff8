package libexch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// Scope covering all EWS operations for the signed-in mailbox.
const ewsScope = "https://outlook.office365.com/.default"

// fileCache persists the MSAL token cache next to the config file, so
// a device-code login survives process restarts.
type fileCache struct {
	path string
}

func (f *fileCache) Replace(ctx context.Context, u cache.Unmarshaler, _ cache.ReplaceHints) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read token cache: %w", err)
	}
	return u.Unmarshal(data)
}

func (f *fileCache) Export(ctx context.Context, m cache.Marshaler, _ cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("marshal token cache: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

// Authenticator owns the MSAL public client and the persisted cache.
type Authenticator struct {
	client    public.Client
	cachePath string
	scopes    []string
}

// NewAuthenticator builds a device-code authenticator for the tenant and
// client id in cfg, caching tokens under dir.
func NewAuthenticator(cfg *Config, dir string) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is not configured; run 'exch config set client_id <id>'")
	}

	cachePath := filepath.Join(dir, "token-cache.json")
	client, err := public.New(cfg.ClientID,
		public.WithAuthority("https://login.microsoftonline.com/"+cfg.TenantID),
		public.WithCache(&fileCache{path: cachePath}),
	)
	if err != nil {
		return nil, fmt.Errorf("create msal client: %w", err)
	}

	return &Authenticator{
		client:    client,
		cachePath: cachePath,
		scopes:    []string{ewsScope},
	}, nil
}

// Login runs the device code flow, printing the verification message to
// w, and blocks until the user completes it or ctx expires.
func (a *Authenticator) Login(ctx context.Context, w io.Writer) error {
	code, err := a.client.AcquireTokenByDeviceCode(ctx, a.scopes)
	if err != nil {
		return fmt.Errorf("start device code flow: %w", err)
	}

	fmt.Fprintln(w, code.Result.Message)

	if _, err := code.AuthenticationResult(ctx); err != nil {
		return fmt.Errorf("device code authentication: %w", err)
	}
	return nil
}

// Token returns a valid access token from the cache, refreshing
// silently. Callers get an actionable error when no account is signed
// in.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	accounts, err := a.client.Accounts(ctx)
	if err != nil {
		return "", fmt.Errorf("enumerate accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("not authenticated: run 'exch login' first")
	}

	result, err := a.client.AcquireTokenSilent(ctx, a.scopes, public.WithSilentAccount(accounts[0]))
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	return result.AccessToken, nil
}

// Account returns the signed-in account's username, or "" when logged
// out.
func (a *Authenticator) Account(ctx context.Context) string {
	accounts, err := a.client.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		return ""
	}
	return accounts[0].PreferredUsername
}

// Logout removes every cached account and deletes the cache file.
func (a *Authenticator) Logout(ctx context.Context) error {
	accounts, err := a.client.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("enumerate accounts: %w", err)
	}
	for _, acct := range accounts {
		if err := a.client.RemoveAccount(ctx, acct); err != nil {
			return fmt.Errorf("remove account: %w", err)
		}
	}
	if err := os.Remove(a.cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete token cache: %w", err)
	}
	return nil
}
