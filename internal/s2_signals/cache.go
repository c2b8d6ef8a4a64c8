package s2_signals

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/logger"
	"github.com/wonny/stockbt/pkg/redis"
)

// CachedBuilder wraps a score source with a Redis cache
// 캐시 키: 설정 + 데이터셋 지문
type CachedBuilder struct {
	inner  contracts.ScoreSource
	cache  *redis.Cache
	salt   string
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedBuilder creates a cached score source
// salt identifies the inner source configuration
func NewCachedBuilder(inner contracts.ScoreSource, cache *redis.Cache, salt string, ttl time.Duration, log *logger.Logger) *CachedBuilder {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedBuilder{inner: inner, cache: cache, salt: salt, ttl: ttl, logger: log.WithStage(contracts.StageSignals.ShortName())}
}

// cachedMatrix 캐시 직렬화 형태
type cachedMatrix struct {
	Dates       []time.Time         `json:"dates"`
	Instruments []string            `json:"instruments"`
	Values      [][]contracts.Score `json:"values"`
}

// Build returns the cached matrix when present, otherwise builds and stores it
// 캐시 오류는 경고 후 직접 계산
func (c *CachedBuilder) Build(ctx context.Context, ds *contracts.Dataset) (*contracts.ScoreMatrix, error) {
	key := redis.ScoreMatrixKey(Fingerprint(c.salt, ds))

	var hit cachedMatrix
	found, err := c.cache.Get(ctx, key, &hit)
	if err != nil {
		c.logger.WithError(err).Warn("Score cache read failed")
	}
	if found {
		m, err := contracts.NewScoreMatrix(hit.Dates, hit.Instruments, hit.Values)
		if err == nil {
			c.logger.WithField("key", key).Debug("Score cache hit")
			return m, nil
		}
		c.logger.WithError(err).Warn("Discarding invalid cached score matrix")
	}

	m, err := c.inner.Build(ctx, ds)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, cachedMatrix{m.Dates, m.Instruments, m.Values}, c.ttl); err != nil {
		c.logger.WithError(err).Warn("Score cache write failed")
	}
	return m, nil
}

// Fingerprint hashes a salt and the dataset contents
func Fingerprint(salt string, ds *contracts.Dataset) string {
	h := sha256.New()
	h.Write([]byte(salt))
	meta, _ := json.Marshal(struct {
		Calendar    []time.Time
		Instruments []string
		Start       int
	}{ds.Calendar, ds.InstrumentIDs(), ds.StartIndex})
	h.Write(meta)

	buf := make([]byte, 8)
	for d := range ds.Bars {
		for i := range ds.Bars[d] {
			b := ds.Bars[d][i]
			binary.LittleEndian.PutUint64(buf, math.Float64bits(b.Close))
			h.Write(buf)
			binary.LittleEndian.PutUint64(buf, math.Float64bits(b.Volume))
			h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
