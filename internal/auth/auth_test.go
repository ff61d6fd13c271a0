package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

type fakeCredStore struct {
	creds map[string]string
	err   error
}

func (f *fakeCredStore) GetCredential(_ context.Context, deviceID string) (*models.DeviceCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	secret, ok := f.creds[deviceID]
	if !ok {
		return nil, errors.New("device not found")
	}
	return &models.DeviceCredential{DeviceID: deviceID, Secret: secret}, nil
}

func newTestAuthenticator(t *testing.T, now time.Time) *Authenticator {
	t.Helper()
	a := NewAuthenticator(&fakeCredStore{creds: map[string]string{"pig-cam-01": "topsecret"}}, zap.NewNop())
	a.SetClock(func() time.Time { return now })
	return a
}

func TestVerify_Success(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, now)

	body := []byte("hello")
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req := httptest.NewRequest("POST", "/ingest/live-frame", bytes.NewReader(body))
	req.Header.Set(HeaderDeviceID, "pig-cam-01")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign("topsecret", "POST", "/ingest/live-frame", body, ts))

	id, fail := a.Verify(req)
	require.Nil(t, fail)
	require.NotNil(t, id)
	assert.Equal(t, "pig-cam-01", id.DeviceID)
	assert.Equal(t, "topsecret", id.Secret)

	// body 必须仍然可读
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, rest)
}

func TestVerify_Deterministic(t *testing.T) {
	body := []byte(`{"tempC":38.5}`)
	s1 := Sign("secret", "POST", "/ingest/snapshot", body, "1700000000000")
	s2 := Sign("secret", "POST", "/ingest/snapshot", body, "1700000000000")
	assert.Equal(t, s1, s2)

	// 改动任意一个字节签名必须变化
	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01
	assert.NotEqual(t, s1, Sign("secret", "POST", "/ingest/snapshot", tampered, "1700000000000"))
}

func TestVerify_MissingHeaders(t *testing.T) {
	a := newTestAuthenticator(t, time.Now())
	req := httptest.NewRequest("POST", "/ingest/live-frame", nil)

	id, fail := a.Verify(req)
	assert.Nil(t, id)
	require.NotNil(t, fail)
	assert.Equal(t, 401, fail.Status)
	assert.Equal(t, "Missing auth headers", fail.Message)
}

func TestVerify_ClockSkewBoundary(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, now)

	cases := []struct {
		name   string
		tsMs   int64
		wantOK bool
	}{
		{"exactly 120000ms behind passes", now.UnixMilli() - 120_000, true},
		{"120001ms behind fails", now.UnixMilli() - 120_001, false},
		{"120000ms ahead passes", now.UnixMilli() + 120_000, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte("x")
			ts := strconv.FormatInt(tc.tsMs, 10)
			req := httptest.NewRequest("POST", "/ingest/live-frame", bytes.NewReader(body))
			req.Header.Set(HeaderDeviceID, "pig-cam-01")
			req.Header.Set(HeaderTimestamp, ts)
			req.Header.Set(HeaderSignature, Sign("topsecret", "POST", "/ingest/live-frame", body, ts))

			id, fail := a.Verify(req)
			if tc.wantOK {
				require.Nil(t, fail)
				assert.NotNil(t, id)
			} else {
				require.NotNil(t, fail)
				assert.Equal(t, 401, fail.Status)
				assert.Equal(t, "Clock skew too large", fail.Message)
			}
		})
	}
}

func TestVerify_NonNumericTimestamp(t *testing.T) {
	a := newTestAuthenticator(t, time.Now())
	req := httptest.NewRequest("POST", "/ingest/live-frame", bytes.NewReader([]byte("x")))
	req.Header.Set(HeaderDeviceID, "pig-cam-01")
	req.Header.Set(HeaderTimestamp, "not-a-number")
	req.Header.Set(HeaderSignature, "deadbeef")

	_, fail := a.Verify(req)
	require.NotNil(t, fail)
	assert.Equal(t, "Clock skew too large", fail.Message)
}

func TestVerify_DeviceNotFound(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, now)

	body := []byte("x")
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req := httptest.NewRequest("POST", "/ingest/live-frame", bytes.NewReader(body))
	req.Header.Set(HeaderDeviceID, "unknown-dev")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign("whatever", "POST", "/ingest/live-frame", body, ts))

	_, fail := a.Verify(req)
	require.NotNil(t, fail)
	assert.Equal(t, 401, fail.Status)
	assert.Equal(t, "Device not found", fail.Message)
}

func TestVerify_TamperedSignature(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, now)

	body := []byte("payload")
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sig := Sign("topsecret", "POST", "/ingest/live-frame", body, ts)

	// 翻转一个十六进制字符
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	req := httptest.NewRequest("POST", "/ingest/live-frame", bytes.NewReader(body))
	req.Header.Set(HeaderDeviceID, "pig-cam-01")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, string(flipped))

	_, fail := a.Verify(req)
	require.NotNil(t, fail)
	assert.Equal(t, 401, fail.Status)
	assert.Equal(t, "Bad signature", fail.Message)
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func (failingBody) Close() error { return nil }

func TestVerify_BodyReadError(t *testing.T) {
	now := time.Now()
	a := newTestAuthenticator(t, now)

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req := httptest.NewRequest("POST", "/ingest/live-frame", nil)
	req.Body = failingBody{}
	req.Header.Set(HeaderDeviceID, "pig-cam-01")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign("topsecret", "POST", "/ingest/live-frame", nil, ts))

	// I/O 故障不是认证失败，不能报 401
	_, fail := a.Verify(req)
	require.NotNil(t, fail)
	assert.Equal(t, 500, fail.Status)
	assert.Equal(t, "server_error", fail.Message)
}

func TestVerify_LookupError(t *testing.T) {
	now := time.Now()
	a := NewAuthenticator(&fakeCredStore{err: errors.New("db down")}, zap.NewNop())
	a.SetClock(func() time.Time { return now })

	body := []byte("x")
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req := httptest.NewRequest("POST", "/ingest/live-frame", bytes.NewReader(body))
	req.Header.Set(HeaderDeviceID, "pig-cam-01")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign("topsecret", "POST", "/ingest/live-frame", body, ts))

	_, fail := a.Verify(req)
	require.NotNil(t, fail)
	assert.Equal(t, "Device not found", fail.Message)
}
