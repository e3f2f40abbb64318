package palette

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/voxel-store/internal/world"
	"github.com/annel0/voxel-store/internal/world/block"
)

// Ошибки палитры
var (
	// ErrPaletteFull — палитра не вмещает больше записей при текущей битовой ширине
	ErrPaletteFull = errors.New("палитра заполнена")

	// ErrIndexOutOfRange — запрошен индекс за пределами палитры
	ErrIndexOutOfRange = errors.New("индекс за пределами палитры")

	// ErrBlockNotInPalette — блок чанка отсутствует в палитре.
	// Означает ошибку вызывающего кода: палитра должна строиться из того же чанка.
	ErrBlockNotInPalette = errors.New("блок отсутствует в палитре")
)

// MinBits и MaxBits ограничивают ширину кода блока
const (
	MinBits = 1
	MaxBits = 8
)

// BlockPalette отображает набор типов блоков одного чанка в плотные
// целочисленные коды и упаковывает массив блоков с минимальной битовой
// шириной. Живёт в рамках одной операции кодирования/декодирования.
type BlockPalette struct {
	entries []block.BlockID
	index   map[block.BlockID]int
	bits    int
}

// CalculateOptimalBits возвращает минимальную битовую ширину в [1,8],
// при которой 2^bits >= uniqueCount. Для 0 и 1 возвращает 1.
func CalculateOptimalBits(uniqueCount int) int {
	switch {
	case uniqueCount <= 2:
		return 1
	case uniqueCount <= 4:
		return 2
	case uniqueCount <= 8:
		return 3
	case uniqueCount <= 16:
		return 4
	case uniqueCount <= 32:
		return 5
	case uniqueCount <= 64:
		return 6
	case uniqueCount <= 128:
		return 7
	default:
		return 8
	}
}

// New создаёт пустую палитру с заданной битовой шириной
func New(bits int) *BlockPalette {
	if bits < MinBits {
		bits = MinBits
	}
	if bits > MaxBits {
		bits = MaxBits
	}
	return &BlockPalette{
		entries: make([]block.BlockID, 0, 1<<bits),
		index:   make(map[block.BlockID]int),
		bits:    bits,
	}
}

// FromChunk строит палитру из содержимого чанка.
// Уникальные ID блоков сортируются по возрастанию перед вставкой,
// поэтому палитра — детерминированная функция набора блоков чанка.
func FromChunk(chunk *world.Chunk) (*BlockPalette, error) {
	set := make(map[block.BlockID]struct{})

	chunk.Mu.RLock()
	for x := 0; x < world.ChunkSize; x++ {
		for y := 0; y < world.WorldHeight; y++ {
			for z := 0; z < world.ChunkSize; z++ {
				set[chunk.Blocks[x][y][z]] = struct{}{}
			}
		}
	}
	chunk.Mu.RUnlock()

	ids := make([]block.BlockID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	p := New(CalculateOptimalBits(len(ids)))
	for _, id := range ids {
		if _, err := p.AddBlock(id); err != nil {
			return nil, fmt.Errorf("чанк %v содержит слишком много типов блоков (%d): %w",
				chunk.Coords, len(ids), err)
		}
	}
	return p, nil
}

// AddBlock добавляет тип блока в палитру и возвращает его индекс.
// Повторное добавление возвращает существующий индекс.
func (p *BlockPalette) AddBlock(id block.BlockID) (int, error) {
	if idx, exists := p.index[id]; exists {
		return idx, nil
	}
	if len(p.entries) >= 1<<p.bits {
		return 0, ErrPaletteFull
	}
	idx := len(p.entries)
	p.entries = append(p.entries, id)
	p.index[id] = idx
	return idx, nil
}

// IndexOf возвращает индекс типа блока в палитре
func (p *BlockPalette) IndexOf(id block.BlockID) (int, bool) {
	idx, exists := p.index[id]
	return idx, exists
}

// BlockAt возвращает тип блока по индексу палитры
func (p *BlockPalette) BlockAt(index int) (block.BlockID, error) {
	if index < 0 || index >= len(p.entries) {
		return 0, fmt.Errorf("%w: %d (размер палитры %d)", ErrIndexOutOfRange, index, len(p.entries))
	}
	return p.entries[index], nil
}

// Size возвращает число записей палитры
func (p *BlockPalette) Size() int {
	return len(p.entries)
}

// BitsPerBlock возвращает битовую ширину кода блока
func (p *BlockPalette) BitsPerBlock() int {
	return p.bits
}

// WordCount возвращает число 64-битных слов, необходимое для упаковки
// одного чанка при ширине bits
func WordCount(bits int) int {
	return (world.BlocksPerChunk*bits + 63) / 64
}

// EncodeChunk упаковывает блоки чанка в 64-битные слова.
// Порядок обхода фиксирован: x внешний, y средний, z внутренний.
// Коды пишутся от младших бит слова, код на границе слов разрезается.
func (p *BlockPalette) EncodeChunk(chunk *world.Chunk) ([]uint64, error) {
	words := make([]uint64, WordCount(p.bits))

	chunk.Mu.RLock()
	defer chunk.Mu.RUnlock()

	bitPos := 0
	for x := 0; x < world.ChunkSize; x++ {
		for y := 0; y < world.WorldHeight; y++ {
			for z := 0; z < world.ChunkSize; z++ {
				id := chunk.Blocks[x][y][z]
				idx, exists := p.index[id]
				if !exists {
					return nil, fmt.Errorf("%w: блок %d в (%d,%d,%d)", ErrBlockNotInPalette, id, x, y, z)
				}

				word := bitPos >> 6
				off := uint(bitPos & 63)
				words[word] |= uint64(idx) << off
				if int(off)+p.bits > 64 {
					words[word+1] |= uint64(idx) >> (64 - off)
				}
				bitPos += p.bits
			}
		}
	}
	return words, nil
}

// DecodeChunk распаковывает слова обратно в чанк. Порядок обхода должен
// в точности совпадать с EncodeChunk, иначе данные тихо искажаются.
func (p *BlockPalette) DecodeChunk(words []uint64, chunk *world.Chunk) error {
	if len(words) != WordCount(p.bits) {
		return fmt.Errorf("неверное число слов: %d, ожидалось %d", len(words), WordCount(p.bits))
	}

	mask := uint64(1)<<p.bits - 1

	chunk.Mu.Lock()
	defer chunk.Mu.Unlock()

	bitPos := 0
	for x := 0; x < world.ChunkSize; x++ {
		for y := 0; y < world.WorldHeight; y++ {
			for z := 0; z < world.ChunkSize; z++ {
				word := bitPos >> 6
				off := uint(bitPos & 63)

				code := words[word] >> off
				if int(off)+p.bits > 64 {
					code |= words[word+1] << (64 - off)
				}
				code &= mask

				id, err := p.BlockAt(int(code))
				if err != nil {
					return err
				}
				chunk.Blocks[x][y][z] = id
				bitPos += p.bits
			}
		}
	}
	return nil
}

// Serialize кодирует список записей палитры: [count:u32][id:u32 x count].
// Битовая ширина в этот под-формат не входит — её хранит вызывающий код
// (первый байт записи чанка).
func (p *BlockPalette) Serialize() []byte {
	buf := make([]byte, 4+4*len(p.entries))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.entries)))
	for i, id := range p.entries {
		binary.LittleEndian.PutUint32(buf[4+i*4:], uint32(id))
	}
	return buf
}

// Deserialize восстанавливает палитру из сериализованного списка записей.
// Индексы назначаются в порядке хранения.
func Deserialize(data []byte, bits int) (*BlockPalette, error) {
	if bits < MinBits || bits > MaxBits {
		return nil, fmt.Errorf("недопустимая битовая ширина: %d", bits)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("палитра повреждена: %d байт", len(data))
	}

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if count > 1<<bits {
		return nil, fmt.Errorf("%w: %d записей при ширине %d бит", ErrPaletteFull, count, bits)
	}
	if len(data) != 4+4*count {
		return nil, fmt.Errorf("палитра повреждена: %d байт при %d записях", len(data), count)
	}

	p := New(bits)
	for i := 0; i < count; i++ {
		id := block.BlockID(binary.LittleEndian.Uint32(data[4+i*4:]))
		if _, err := p.AddBlock(id); err != nil {
			return nil, err
		}
	}
	if p.Size() != count {
		return nil, fmt.Errorf("палитра повреждена: дублирующиеся записи")
	}
	return p, nil
}

// SerializedSize возвращает размер сериализованной палитры в байтах
func (p *BlockPalette) SerializedSize() int {
	return 4 + 4*len(p.entries)
}
