package storage

import (
	"context"
	"path/filepath"
	"time"

	"github.com/annel0/voxel-store/internal/config"
	"github.com/annel0/voxel-store/internal/logging"
	"github.com/annel0/voxel-store/internal/storage/palette"
	"github.com/annel0/voxel-store/internal/vec"
	"github.com/annel0/voxel-store/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer для операций слоя хранения
var tracer = otel.Tracer("voxel-store/storage")

// Storage — корневой объект движка хранения мира. Владеет кешем файлов
// регионов, хранилищем метаданных и пулом I/O воркеров. Создаётся один
// на мир и передаётся явно, без глобального состояния.
type Storage struct {
	regions   *regionCache
	meta      *MetaStore
	pool      *ioPool
	opTimeout time.Duration

	saveOps *SaveOperations
	loadOps *LoadOperations
}

// New открывает хранилище мира по конфигурации
func New(cfg *config.StorageConfig) (*Storage, error) {
	if cfg == nil {
		cfg = &config.StorageConfig{}
	}
	dataPath := cfg.GetDataPath()

	regions, err := newRegionCache(filepath.Join(dataPath, "regions"))
	if err != nil {
		return nil, err
	}

	meta, err := NewMetaStore(dataPath)
	if err != nil {
		_ = regions.closeAll()
		return nil, err
	}

	s := &Storage{
		regions:   regions,
		meta:      meta,
		pool:      newIOPool(cfg.GetIOWorkers()),
		opTimeout: time.Duration(cfg.GetOpTimeoutSeconds()) * time.Second,
	}
	s.saveOps = &SaveOperations{s: s}
	s.loadOps = &LoadOperations{s: s}

	logging.Info("💾 Хранилище мира открыто: %s (%d I/O воркеров)", dataPath, cfg.GetIOWorkers())
	return s, nil
}

// Save возвращает фасад операций сохранения
func (s *Storage) Save() *SaveOperations {
	return s.saveOps
}

// Load возвращает фасад операций загрузки
func (s *Storage) Load() *LoadOperations {
	return s.loadOps
}

// OpenRegionCount возвращает число открытых файлов регионов
func (s *Storage) OpenRegionCount() int {
	return s.regions.openCount()
}

// Flush синхронизирует все открытые файлы регионов
func (s *Storage) Flush() error {
	return s.regions.flushAll()
}

// Close останавливает воркеров и закрывает все файлы.
// Вызывающий код должен дождаться завершения выданных операций.
func (s *Storage) Close() error {
	s.pool.stop()

	err := s.regions.closeAll()
	if metaErr := s.meta.Close(); metaErr != nil && err == nil {
		err = metaErr
	}
	logging.Info("💾 Хранилище мира закрыто")
	return err
}

// --- Синхронные операции (выполняются на I/O воркерах) ---

// saveChunkSync кодирует чанк палитрой и записывает в его регион
func (s *Storage) saveChunkSync(ctx context.Context, chunk *world.Chunk) error {
	_, span := tracer.Start(ctx, "storage.SaveChunk", trace.WithAttributes(
		attribute.Int("chunk.x", chunk.Coords.X),
		attribute.Int("chunk.z", chunk.Coords.Y),
	))
	defer span.End()

	start := time.Now()
	defer func() { saveDuration.Observe(time.Since(start).Seconds()) }()

	p, err := palette.FromChunk(chunk)
	if err != nil {
		span.RecordError(err)
		return err
	}

	words, err := p.EncodeChunk(chunk)
	if err != nil {
		span.RecordError(err)
		return err
	}

	record := EncodeChunkRecord(p, words)

	rf, err := s.regions.get(chunk.Coords.ToRegionCoords())
	if err != nil {
		span.RecordError(err)
		return err
	}

	local := chunk.Coords.LocalInRegion()
	if err := rf.WriteChunk(local.X, local.Y, record); err != nil {
		span.RecordError(err)
		return err
	}

	chunk.ClearChanges()
	chunksSaved.Inc()
	chunkBytesWritten.Add(float64(len(record)))
	return nil
}

// loadChunkSync читает запись чанка из региона и декодирует её
func (s *Storage) loadChunkSync(ctx context.Context, coords vec.Vec2) (*world.Chunk, bool, error) {
	_, span := tracer.Start(ctx, "storage.LoadChunk", trace.WithAttributes(
		attribute.Int("chunk.x", coords.X),
		attribute.Int("chunk.z", coords.Y),
	))
	defer span.End()

	rf, err := s.regions.get(coords.ToRegionCoords())
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	local := coords.LocalInRegion()
	data, found, err := rf.ReadChunk(local.X, local.Y)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	p, words, err := DecodeChunkRecord(data)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	chunk := world.NewChunk(coords)
	if err := p.DecodeChunk(words, chunk); err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	chunksLoaded.Inc()
	return chunk, true, nil
}

// chunkExistsSync проверяет занятость слота без чтения данных
func (s *Storage) chunkExistsSync(coords vec.Vec2) (bool, error) {
	rf, err := s.regions.get(coords.ToRegionCoords())
	if err != nil {
		return false, err
	}
	local := coords.LocalInRegion()
	return rf.HasChunk(local.X, local.Y), nil
}

// DeleteChunk очищает слот чанка в его регионе (синхронно)
func (s *Storage) DeleteChunk(coords vec.Vec2) error {
	rf, err := s.regions.get(coords.ToRegionCoords())
	if err != nil {
		return err
	}
	local := coords.LocalInRegion()
	return rf.DeleteChunk(local.X, local.Y)
}
