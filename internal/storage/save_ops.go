package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/voxel-store/internal/logging"
	"github.com/annel0/voxel-store/internal/world"
)

// SaveOperations — фасад асинхронных операций сохранения. Каждая операция
// ставится в пул I/O воркеров и возвращает буферизованный канал результата,
// поэтому вызывающий поток никогда не блокируется на fsync.
type SaveOperations struct {
	s *Storage
}

// SaveSummary — итог пакетной операции сохранения
type SaveSummary struct {
	Saved  int   // число успешно сохранённых чанков
	Failed int   // число чанков с ошибкой
	Err    error // первая встреченная ошибка
}

// failedErr возвращает канал с готовой ошибкой (операция не стартовала)
func failedErr(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// SaveChunk асинхронно сохраняет один чанк. Канал получает ровно одно
// значение: nil при успехе либо ошибку.
func (so *SaveOperations) SaveChunk(ctx context.Context, chunk *world.Chunk) <-chan error {
	if chunk == nil {
		return failedErr(fmt.Errorf("чанк не задан"))
	}

	result := make(chan error, 1)
	opCtx, cancel := context.WithTimeout(ctx, so.s.opTimeout)

	err := so.s.pool.submit(opCtx, func() {
		defer cancel()
		if err := opCtx.Err(); err != nil {
			result <- err
			return
		}
		result <- so.s.saveChunkSync(opCtx, chunk)
	})
	if err != nil {
		cancel()
		return failedErr(err)
	}
	return result
}

// SaveDirtyChunks асинхронно сохраняет чанки с несохранёнными изменениями.
// Чанки без изменений пропускаются. Чанки разных регионов пишутся
// параллельно, насколько позволяет пул.
func (so *SaveOperations) SaveDirtyChunks(ctx context.Context, chunks []*world.Chunk) <-chan SaveSummary {
	result := make(chan SaveSummary, 1)

	go func() {
		var dirty []*world.Chunk
		for _, c := range chunks {
			if c != nil && c.HasChanges() {
				dirty = append(dirty, c)
			}
		}
		result <- so.saveBatch(ctx, dirty)
	}()
	return result
}

// SaveAll асинхронно сохраняет всё состояние мира: метаданные, игроков и
// все переданные чанки (независимо от флага изменений), после чего
// синхронизирует открытые регионы.
func (so *SaveOperations) SaveAll(ctx context.Context, meta *WorldMetadata, players []*PlayerState, chunks []*world.Chunk) <-chan SaveSummary {
	result := make(chan SaveSummary, 1)

	go func() {
		summary := SaveSummary{}

		if meta != nil {
			if err := so.s.meta.SaveWorldMetadata(meta); err != nil {
				summary.Err = fmt.Errorf("не удалось сохранить метаданные мира: %w", err)
				result <- summary
				return
			}
		}
		for _, p := range players {
			if p == nil {
				continue
			}
			if err := so.s.meta.SavePlayerState(p); err != nil {
				summary.Err = fmt.Errorf("не удалось сохранить игрока %s: %w", p.Name, err)
				result <- summary
				return
			}
		}

		summary = so.saveBatch(ctx, chunks)

		if err := so.s.Flush(); err != nil && summary.Err == nil {
			summary.Err = err
		}
		logging.Info("💾 Полное сохранение мира: %d чанков, %d ошибок", summary.Saved, summary.Failed)
		result <- summary
	}()
	return result
}

// saveBatch раздаёт чанки по воркерам и собирает итог
func (so *SaveOperations) saveBatch(ctx context.Context, chunks []*world.Chunk) SaveSummary {
	opCtx, cancel := context.WithTimeout(ctx, so.s.opTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary SaveSummary
	)

	for _, chunk := range chunks {
		if chunk == nil {
			continue
		}
		c := chunk

		wg.Add(1)
		err := so.s.pool.submit(opCtx, func() {
			defer wg.Done()

			var saveErr error
			if saveErr = opCtx.Err(); saveErr == nil {
				saveErr = so.s.saveChunkSync(opCtx, c)
			}

			mu.Lock()
			if saveErr != nil {
				summary.Failed++
				if summary.Err == nil {
					summary.Err = fmt.Errorf("чанк %v: %w", c.Coords, saveErr)
				}
			} else {
				summary.Saved++
			}
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			summary.Failed++
			if summary.Err == nil {
				summary.Err = err
			}
			mu.Unlock()
		}
	}

	wg.Wait()
	return summary
}

// SaveWorldMetadata асинхронно сохраняет метаданные мира
func (so *SaveOperations) SaveWorldMetadata(ctx context.Context, meta *WorldMetadata) <-chan error {
	if meta == nil {
		return failedErr(fmt.Errorf("метаданные не заданы"))
	}

	result := make(chan error, 1)
	err := so.s.pool.submit(ctx, func() {
		result <- so.s.meta.SaveWorldMetadata(meta)
	})
	if err != nil {
		return failedErr(err)
	}
	return result
}

// SavePlayerState асинхронно сохраняет состояние игрока
func (so *SaveOperations) SavePlayerState(ctx context.Context, state *PlayerState) <-chan error {
	if state == nil {
		return failedErr(fmt.Errorf("состояние игрока не задано"))
	}

	result := make(chan error, 1)
	err := so.s.pool.submit(ctx, func() {
		result <- so.s.meta.SavePlayerState(state)
	})
	if err != nil {
		return failedErr(err)
	}
	return result
}
