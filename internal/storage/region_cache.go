package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/annel0/voxel-store/internal/logging"
	"github.com/annel0/voxel-store/internal/storage/region"
	"github.com/annel0/voxel-store/internal/vec"
)

// regionCache лениво открывает файлы регионов и держит их открытыми
// до закрытия хранилища. Блокировка защищает только карту: сами файлы
// синхронизируются собственными блокировками, поэтому операции над
// разными регионами идут полностью параллельно.
type regionCache struct {
	dir     string
	mu      sync.RWMutex
	regions map[vec.Vec2]*region.RegionFile
	closed  bool
}

func newRegionCache(dir string) (*regionCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию регионов %s: %w", dir, err)
	}
	return &regionCache{
		dir:     dir,
		regions: make(map[vec.Vec2]*region.RegionFile),
	}, nil
}

// get возвращает открытый файл региона, открывая его при первом обращении
func (rc *regionCache) get(coords vec.Vec2) (*region.RegionFile, error) {
	rc.mu.RLock()
	if rc.closed {
		rc.mu.RUnlock()
		return nil, region.ErrRegionClosed
	}
	if rf, exists := rc.regions[coords]; exists {
		rc.mu.RUnlock()
		return rf, nil
	}
	rc.mu.RUnlock()

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return nil, region.ErrRegionClosed
	}
	// Проверяем еще раз: регион могли открыть, пока мы ждали блокировку
	if rf, exists := rc.regions[coords]; exists {
		return rf, nil
	}

	path := filepath.Join(rc.dir, region.FileName(coords))
	rf, err := region.Open(path)
	if err != nil {
		return nil, err
	}

	rc.regions[coords] = rf
	openRegions.Set(float64(len(rc.regions)))
	logging.Debug("Открыт файл региона %s (%d чанков)", path, rf.ChunkCount())
	return rf, nil
}

// openCount возвращает число открытых файлов регионов
func (rc *regionCache) openCount() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.regions)
}

// flushAll синхронизирует все открытые регионы
func (rc *regionCache) flushAll() error {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	var lastErr error
	for coords, rf := range rc.regions {
		if err := rf.Flush(); err != nil {
			lastErr = fmt.Errorf("не удалось синхронизировать регион %v: %w", coords, err)
		}
	}
	return lastErr
}

// closeAll закрывает все открытые регионы. Дальнейшие операции невозможны.
func (rc *regionCache) closeAll() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return nil
	}
	rc.closed = true

	var lastErr error
	for coords, rf := range rc.regions {
		if err := rf.Close(); err != nil {
			lastErr = fmt.Errorf("не удалось закрыть регион %v: %w", coords, err)
		}
	}
	rc.regions = make(map[vec.Vec2]*region.RegionFile)
	openRegions.Set(0)
	return lastErr
}
