package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/annel0/voxel-store/internal/storage/palette"
)

// ErrBadRecord — запись чанка не соответствует формату
var ErrBadRecord = errors.New("запись чанка повреждена")

// Формат записи чанка (непрозрачный blob одного слота региона):
//
//	[bitsPerBlock: 1 байт]
//	[число записей палитры: u32 LE]
//	[записи палитры: u32 LE x count]
//	[упакованные 64-битные слова: u64 LE]
//
// Блоки упакованы по bitsPerBlock бит на блок в порядке обхода
// x-внешний, y-средний, z-внутренний (см. palette.EncodeChunk).

// EncodeChunkRecord собирает запись чанка из палитры и упакованных слов
func EncodeChunkRecord(p *palette.BlockPalette, words []uint64) []byte {
	buf := make([]byte, 1+p.SerializedSize()+8*len(words))

	buf[0] = byte(p.BitsPerBlock())
	copy(buf[1:], p.Serialize())

	base := 1 + p.SerializedSize()
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[base+i*8:], w)
	}
	return buf
}

// DecodeChunkRecord разбирает запись чанка на палитру и упакованные слова.
// Любое расхождение с форматом — ErrBadRecord: запись нечитаема целиком.
func DecodeChunkRecord(data []byte) (*palette.BlockPalette, []uint64, error) {
	if len(data) < 1+4 {
		return nil, nil, fmt.Errorf("%w: %d байт", ErrBadRecord, len(data))
	}

	bits := int(data[0])
	if bits < palette.MinBits || bits > palette.MaxBits {
		return nil, nil, fmt.Errorf("%w: битовая ширина %d", ErrBadRecord, bits)
	}

	count := int(binary.LittleEndian.Uint32(data[1:5]))
	paletteEnd := 1 + 4 + 4*count
	if paletteEnd > len(data) {
		return nil, nil, fmt.Errorf("%w: палитра выходит за границы записи", ErrBadRecord)
	}

	p, err := palette.Deserialize(data[1:paletteEnd], bits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}

	packed := data[paletteEnd:]
	wordCount := palette.WordCount(bits)
	if len(packed) != wordCount*8 {
		return nil, nil, fmt.Errorf("%w: %d байт данных блоков, ожидалось %d",
			ErrBadRecord, len(packed), wordCount*8)
	}

	words := make([]uint64, wordCount)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(packed[i*8:])
	}
	return p, words, nil
}
