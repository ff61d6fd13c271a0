package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/models"
)

// 时钟偏移容忍（毫秒，含边界）
const maxClockSkewMs = 120_000

// 认证请求头
const (
	HeaderDeviceID  = "X-Device-Id"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// CredentialStore 设备凭据查询接口（由 repository 实现）
type CredentialStore interface {
	GetCredential(ctx context.Context, deviceID string) (*models.DeviceCredential, error)
}

// Identity 验证通过后的设备身份
type Identity struct {
	DeviceID string
	Secret   string
}

// Failure 验证失败结果（status + 响应消息）
type Failure struct {
	Status  int
	Message string
}

// Authenticator 设备请求签名验证器
// 签名规则：HMAC-SHA256(secret, METHOD\npath\nhex(SHA256(body))\ntimestamp)
type Authenticator struct {
	creds  CredentialStore
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthenticator 创建验证器
func NewAuthenticator(creds CredentialStore, logger *zap.Logger) *Authenticator {
	return &Authenticator{creds: creds, logger: logger, now: time.Now}
}

// SetClock 覆盖时钟（仅测试用）
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

// Verify 验证请求签名，成功返回设备身份
// 读取 body 后会原样恢复 r.Body，调用方可以继续解析 multipart
func (a *Authenticator) Verify(r *http.Request) (*Identity, *Failure) {
	devID := r.Header.Get(HeaderDeviceID)
	ts := r.Header.Get(HeaderTimestamp)
	sig := r.Header.Get(HeaderSignature)
	if devID == "" || ts == "" || sig == "" {
		return nil, &Failure{Status: http.StatusUnauthorized, Message: "Missing auth headers"}
	}

	// 时钟偏移校验（epoch 毫秒，非数字视为偏移过大）
	tsMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, &Failure{Status: http.StatusUnauthorized, Message: "Clock skew too large"}
	}
	skew := a.now().UnixMilli() - tsMs
	if skew < 0 {
		skew = -skew
	}
	if skew > maxClockSkewMs {
		return nil, &Failure{Status: http.StatusUnauthorized, Message: "Clock skew too large"}
	}

	dev, err := a.creds.GetCredential(r.Context(), devID)
	if err != nil || dev == nil {
		if err != nil {
			a.logger.Warn("credential lookup failed",
				zap.String("device_id", devID),
				zap.Error(err),
			)
		}
		return nil, &Failure{Status: http.StatusUnauthorized, Message: "Device not found"}
	}

	// body 摘要取自完整副本，读完后恢复给调用方
	// 读失败是 I/O 问题而不是认证失败，走 500
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.logger.Warn("failed to read request body",
			zap.String("device_id", devID),
			zap.Error(err),
		)
		return nil, &Failure{Status: http.StatusInternalServerError, Message: "server_error"}
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	expected := Sign(dev.Secret, r.Method, r.URL.Path, body, ts)
	if !constantTimeEqualHex(expected, sig) {
		a.logger.Warn("signature mismatch",
			zap.String("device_id", devID),
			zap.Int("body_bytes", len(body)),
		)
		return nil, &Failure{Status: http.StatusUnauthorized, Message: "Bad signature"}
	}

	return &Identity{DeviceID: dev.DeviceID, Secret: dev.Secret}, nil
}

// Sign 计算请求签名（固件侧、模拟器与测试共用同一实现）
func Sign(secret, method, path string, body []byte, timestamp string) string {
	bodyHash := sha256.Sum256(body)
	base := fmt.Sprintf("%s\n%s\n%s\n%s", method, path, hex.EncodeToString(bodyHash[:]), timestamp)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
