package world

import (
	"math/rand"

	"github.com/annel0/voxel-store/internal/util"
	"github.com/annel0/voxel-store/internal/vec"
	"github.com/annel0/voxel-store/internal/world/block"
)

// Константы генерации ландшафта
const (
	SeaLevel      = 24 // Уровень воды
	MinSurface    = 12 // Минимальная высота поверхности
	MaxSurface    = 48 // Максимальная высота поверхности
	OreChance     = 30 // Шанс руды в камне, 1 к OreChance
	FlowerDensity = 0.04
)

// WorldGenerator генерирует ландшафт мира.
// Слой персистентности использует его только в демо и тестах:
// повреждённые чанки восстанавливаются повторной генерацией.
type WorldGenerator struct {
	Seed       int64   // Сид для генерации шума
	NoiseScale float64 // Масштаб шума высоты
	noise      *util.NoiseGenerator
}

// NewWorldGenerator создаёт новый генератор мира
func NewWorldGenerator(seed int64) *WorldGenerator {
	return &WorldGenerator{
		Seed:       seed,
		NoiseScale: 0.02,
		noise:      util.NewNoiseGenerator(seed),
	}
}

// GenerateChunk генерирует чанк по его координатам.
// Результат детерминирован: один и тот же сид и координаты
// всегда дают одинаковое содержимое.
func (wg *WorldGenerator) GenerateChunk(coords vec.Vec2) *Chunk {
	chunk := NewChunk(coords)

	// Для каждого чанка создаём уникальный сид на основе глобального сида и координат
	chunkSeed := wg.Seed + int64(coords.X)*31 + int64(coords.Y)*17
	rng := rand.New(rand.NewSource(chunkSeed))

	globalStartX := coords.X << 4 // chunkX * 16
	globalStartZ := coords.Y << 4

	chunk.Mu.Lock()
	defer chunk.Mu.Unlock()

	for x := 0; x < ChunkSize; x++ {
		for z := 0; z < ChunkSize; z++ {
			globalX := globalStartX + x
			globalZ := globalStartZ + z

			// Высота поверхности столбца по шуму Перлина
			h := wg.noise.Noise2D(float64(globalX)*wg.NoiseScale, float64(globalZ)*wg.NoiseScale)
			surface := MinSurface + int(h*float64(MaxSurface-MinSurface))

			for y := 0; y < WorldHeight; y++ {
				chunk.Blocks[x][y][z] = wg.blockAt(y, surface, rng)
			}

			// Цветы на траве выше уровня воды
			if surface > SeaLevel && surface+1 < WorldHeight && rng.Float64() < FlowerDensity {
				chunk.Blocks[x][surface+1][z] = block.FlowerBlockID
			}
		}
	}

	chunk.ChangeCounter = BlocksPerChunk // свежесгенерированный чанк считается грязным
	return chunk
}

// blockAt выбирает блок для высоты y при высоте поверхности surface
func (wg *WorldGenerator) blockAt(y, surface int, rng *rand.Rand) block.BlockID {
	switch {
	case y > surface:
		if y <= SeaLevel {
			return block.WaterBlockID
		}
		return block.AirBlockID
	case y == surface:
		if surface <= SeaLevel {
			return block.SandBlockID
		}
		return block.GrassBlockID
	case y >= surface-3:
		return block.DirtBlockID
	default:
		// Каменное основание с вкраплениями руды
		if rng.Intn(OreChance) == 0 {
			if rng.Intn(2) == 0 {
				return block.CoalOreBlockID
			}
			return block.IronOreBlockID
		}
		return block.StoneBlockID
	}
}
