package storage

import (
	"context"
	"sync"

	"github.com/annel0/voxel-store/internal/vec"
	"github.com/annel0/voxel-store/internal/world"
)

// LoadOperations — фасад асинхронных операций загрузки
type LoadOperations struct {
	s *Storage
}

// ChunkResult — результат загрузки одного чанка
type ChunkResult struct {
	Coords vec.Vec2
	Chunk  *world.Chunk // nil, если чанк не найден или произошла ошибка
	Found  bool
	Err    error
}

// ExistsResult — результат проверки наличия чанка
type ExistsResult struct {
	Exists bool
	Err    error
}

// MetadataResult — результат загрузки метаданных мира
type MetadataResult struct {
	Meta *WorldMetadata
	Err  error
}

// PlayerResult — результат загрузки состояния игрока
type PlayerResult struct {
	State *PlayerState
	Err   error
}

// LoadChunk асинхронно загружает чанк. Канал получает ровно одно значение.
// Отсутствующий чанк — не ошибка: Found=false, Err=nil.
func (lo *LoadOperations) LoadChunk(ctx context.Context, coords vec.Vec2) <-chan ChunkResult {
	result := make(chan ChunkResult, 1)
	opCtx, cancel := context.WithTimeout(ctx, lo.s.opTimeout)

	err := lo.s.pool.submit(opCtx, func() {
		defer cancel()
		if err := opCtx.Err(); err != nil {
			result <- ChunkResult{Coords: coords, Err: err}
			return
		}
		chunk, found, err := lo.s.loadChunkSync(opCtx, coords)
		result <- ChunkResult{Coords: coords, Chunk: chunk, Found: found, Err: err}
	})
	if err != nil {
		cancel()
		result <- ChunkResult{Coords: coords, Err: err}
	}
	return result
}

// ChunkExists асинхронно проверяет, записан ли чанк на диск
func (lo *LoadOperations) ChunkExists(ctx context.Context, coords vec.Vec2) <-chan ExistsResult {
	result := make(chan ExistsResult, 1)

	err := lo.s.pool.submit(ctx, func() {
		exists, err := lo.s.chunkExistsSync(coords)
		result <- ExistsResult{Exists: exists, Err: err}
	})
	if err != nil {
		result <- ExistsResult{Err: err}
	}
	return result
}

// LoadChunksInRadius загружает все чанки в радиусе вокруг центра (в
// координатах чанков) и стримит результаты по мере готовности. Канал
// закрывается после последнего результата. Порядок не гарантируется.
// Отмена контекста прерывает ещё не начатые загрузки, каждая из них
// вернёт результат с ошибкой контекста.
func (lo *LoadOperations) LoadChunksInRadius(ctx context.Context, center vec.Vec2, radius int) <-chan ChunkResult {
	if radius < 0 {
		radius = 0
	}

	// Вместимость с запасом: квадрат со стороной 2r+1
	results := make(chan ChunkResult, (2*radius+1)*(2*radius+1))

	go func() {
		defer close(results)

		opCtx, cancel := context.WithTimeout(ctx, lo.s.opTimeout)
		defer cancel()

		var wg sync.WaitGroup
		for dx := -radius; dx <= radius; dx++ {
			for dz := -radius; dz <= radius; dz++ {
				if dx*dx+dz*dz > radius*radius {
					continue
				}
				coords := vec.Vec2{X: center.X + dx, Y: center.Y + dz}

				wg.Add(1)
				err := lo.s.pool.submit(opCtx, func() {
					defer wg.Done()
					if err := opCtx.Err(); err != nil {
						results <- ChunkResult{Coords: coords, Err: err}
						return
					}
					chunk, found, err := lo.s.loadChunkSync(opCtx, coords)
					results <- ChunkResult{Coords: coords, Chunk: chunk, Found: found, Err: err}
				})
				if err != nil {
					wg.Done()
					results <- ChunkResult{Coords: coords, Err: err}
				}
			}
		}
		wg.Wait()
	}()
	return results
}

// LoadWorldMetadata асинхронно загружает метаданные мира.
// Возвращает ErrWorldNotFound, если мир не создан.
func (lo *LoadOperations) LoadWorldMetadata(ctx context.Context) <-chan MetadataResult {
	result := make(chan MetadataResult, 1)

	err := lo.s.pool.submit(ctx, func() {
		meta, err := lo.s.meta.LoadWorldMetadata()
		result <- MetadataResult{Meta: meta, Err: err}
	})
	if err != nil {
		result <- MetadataResult{Err: err}
	}
	return result
}

// LoadPlayerState асинхронно загружает состояние игрока по имени.
// Возвращает ErrPlayerNotFound, если игрок не сохранялся.
func (lo *LoadOperations) LoadPlayerState(ctx context.Context, name string) <-chan PlayerResult {
	result := make(chan PlayerResult, 1)

	err := lo.s.pool.submit(ctx, func() {
		state, err := lo.s.meta.LoadPlayerState(name)
		result <- PlayerResult{State: state, Err: err}
	})
	if err != nil {
		result <- PlayerResult{Err: err}
	}
	return result
}

// ValidateWorldExists асинхронно проверяет наличие читаемых метаданных мира.
// Канал получает nil при успехе, ErrWorldNotFound или ErrBadFormat иначе.
func (lo *LoadOperations) ValidateWorldExists(ctx context.Context) <-chan error {
	result := make(chan error, 1)

	err := lo.s.pool.submit(ctx, func() {
		_, err := lo.s.meta.LoadWorldMetadata()
		result <- err
	})
	if err != nil {
		result <- err
	}
	return result
}
