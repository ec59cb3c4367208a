package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCertURL はIDトークン署名用の公開証明書を配布するエンドポイント。
const DefaultCertURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// defaultKeyTTL はCache-Controlにmax-ageが無い場合のキャッシュ期間。
const defaultKeyTTL = time.Hour

// minRefreshInterval は未知のkidによる再取得の最小間隔。
const minRefreshInterval = time.Minute

// maxCertResponseSize は証明書レスポンスの最大サイズ。
const maxCertResponseSize = 1 << 20

// ErrUnknownKeyID は指定されたkidの公開鍵が見つからないことを示す。
var ErrUnknownKeyID = errors.New("unknown key id")

// KeySource はkidに対応する署名検証用の公開鍵を返す。
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// CertificateKeySource はx509証明書のJSONマップ（kid -> PEM）を取得し、
// Cache-Controlのmax-ageに従ってキャッシュする。
type CertificateKeySource struct {
	url    string
	client *http.Client
	now    func() time.Time

	refreshMu sync.Mutex // 再取得を1本に絞る

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	fetchedAt time.Time
}

// NewCertificateKeySource はCertificateKeySourceを生成する。
// urlが空の場合はDefaultCertURLを使用する。
func NewCertificateKeySource(url string, client *http.Client) *CertificateKeySource {
	if url == "" {
		url = DefaultCertURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CertificateKeySource{
		url:    url,
		client: client,
		now:    time.Now,
	}
}

// PublicKey はkidに対応する公開鍵を返す。
// キャッシュが期限切れ、またはkidが未知の場合は証明書を再取得する。
// 未知のkidによる再取得はminRefreshIntervalに1回までに制限する。
func (s *CertificateKeySource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok, done := s.lookup(kid); done {
		return key, lookupErr(ok, kid)
	}

	// 同時に来た再取得要求は1回の取得にまとめる
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if key, ok, done := s.lookup(kid); done {
		return key, lookupErr(ok, kid)
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok, _ := s.lookup(kid)
	return key, lookupErr(ok, kid)
}

// lookup はキャッシュからkidを引く。doneがtrueなら再取得は不要。
// キャッシュが有効期間内で、直近minRefreshInterval以内に取得済みの場合は
// 未知のkidでも再取得しない。
func (s *CertificateKeySource) lookup(kid string) (key *rsa.PublicKey, ok bool, done bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	if now.After(s.expiresAt) || now.Equal(s.expiresAt) {
		return nil, false, false
	}

	key, ok = s.keys[kid]
	if ok {
		return key, true, true
	}
	return nil, false, now.Sub(s.fetchedAt) < minRefreshInterval
}

func lookupErr(ok bool, kid string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownKeyID, kid)
}

// refresh は証明書を取得してキャッシュを置き換える。
func (s *CertificateKeySource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create cert request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("cert request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCertResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read cert response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cert fetch failed with status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("failed to parse cert response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(certPEM))
		if err != nil {
			return fmt.Errorf("invalid certificate for kid %s: %w", kid, err)
		}
		keys[kid] = key
	}

	now := s.now()
	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = now
	s.expiresAt = now.Add(maxAge(resp.Header.Get("Cache-Control")))
	s.mu.Unlock()

	return nil
}

// maxAge はCache-Controlヘッダーからmax-ageを取り出す。
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		v, found := strings.CutPrefix(directive, "max-age=")
		if !found {
			continue
		}
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			break
		}
		return time.Duration(sec) * time.Second
	}
	return defaultKeyTTL
}

// compile-time interface check
var _ KeySource = (*CertificateKeySource)(nil)
