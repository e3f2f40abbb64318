package world

import (
	"sync"

	"github.com/annel0/voxel-store/internal/vec"
	"github.com/annel0/voxel-store/internal/world/block"
)

// Размеры чанка. Меняются только вместе с форматом файлов регионов.
const (
	ChunkSize   = 16 // Горизонтальный размер чанка в блоках
	WorldHeight = 64 // Высота мира в блоках

	// BlocksPerChunk — полное число блоков в одном чанке
	BlocksPerChunk = ChunkSize * WorldHeight * ChunkSize
)

// Chunk представляет участок мира размером 16x64x16 блоков.
// Blocks индексируется как [x][y][z], x и z в [0,16), y в [0,64).
type Chunk struct {
	Coords vec.Vec2 // Координаты чанка в мире

	Blocks [ChunkSize][WorldHeight][ChunkSize]block.BlockID

	ChangeCounter int          // Счетчик изменений с последнего сохранения
	Mu            sync.RWMutex // Мьютекс для безопасного доступа
}

// NewChunk создаёт новый чанк с указанными координатами
func NewChunk(coords vec.Vec2) *Chunk {
	return &Chunk{
		Coords: coords,
	}
}

// GetBlock возвращает ID блока по локальным координатам
func (c *Chunk) GetBlock(x, y, z int) block.BlockID {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	return c.Blocks[x][y][z]
}

// SetBlock устанавливает блок по локальным координатам
func (c *Chunk) SetBlock(x, y, z int, id block.BlockID) {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	c.Blocks[x][y][z] = id
	c.ChangeCounter++
}

// HasChanges возвращает true, если чанк менялся с последнего сохранения
func (c *Chunk) HasChanges() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	return c.ChangeCounter > 0
}

// ClearChanges сбрасывает счетчик изменений (вызывается после сохранения)
func (c *Chunk) ClearChanges() {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	c.ChangeCounter = 0
}

// Equals сравнивает содержимое двух чанков поблочно
func (c *Chunk) Equals(other *Chunk) bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	other.Mu.RLock()
	defer other.Mu.RUnlock()

	return c.Blocks == other.Blocks
}
