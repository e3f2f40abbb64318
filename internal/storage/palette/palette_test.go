package palette

import (
	"errors"
	"testing"

	"github.com/annel0/voxel-store/internal/vec"
	"github.com/annel0/voxel-store/internal/world"
	"github.com/annel0/voxel-store/internal/world/block"
)

// TestCalculateOptimalBits тестирует выбор битовой ширины
func TestCalculateOptimalBits(t *testing.T) {
	cases := []struct {
		count int
		bits  int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{8, 3},
		{9, 4},
		{16, 4},
		{17, 5},
		{33, 6},
		{65, 7},
		{128, 7},
		{129, 8},
		{256, 8},
		{1000, 8},
	}

	for _, c := range cases {
		if got := CalculateOptimalBits(c.count); got != c.bits {
			t.Errorf("CalculateOptimalBits(%d) = %d, ожидалось %d", c.count, got, c.bits)
		}
	}

	// Монотонность: ширина не убывает с ростом числа записей
	prev := 0
	for n := 0; n <= 300; n++ {
		bits := CalculateOptimalBits(n)
		if bits < prev {
			t.Fatalf("ширина убывает: %d бит для %d записей после %d", bits, n, prev)
		}
		if 1<<bits < n && bits < MaxBits {
			t.Fatalf("ширина %d бит не вмещает %d записей", bits, n)
		}
		prev = bits
	}
}

// TestAddBlock тестирует добавление блоков и переполнение палитры
func TestAddBlock(t *testing.T) {
	t.Run("Idempotent Add", func(t *testing.T) {
		p := New(2)

		idx1, err := p.AddBlock(block.StoneBlockID)
		if err != nil {
			t.Fatalf("Ошибка добавления блока: %v", err)
		}
		idx2, err := p.AddBlock(block.StoneBlockID)
		if err != nil {
			t.Fatalf("Ошибка повторного добавления: %v", err)
		}
		if idx1 != idx2 {
			t.Errorf("Повторное добавление дало другой индекс: %d != %d", idx1, idx2)
		}
		if p.Size() != 1 {
			t.Errorf("Размер палитры %d, ожидался 1", p.Size())
		}
	})

	t.Run("Palette Full", func(t *testing.T) {
		p := New(1) // вмещает 2 записи

		for i := 0; i < 2; i++ {
			if _, err := p.AddBlock(block.BlockID(i)); err != nil {
				t.Fatalf("Ошибка добавления блока %d: %v", i, err)
			}
		}

		_, err := p.AddBlock(block.BlockID(99))
		if !errors.Is(err, ErrPaletteFull) {
			t.Errorf("Ожидалась ErrPaletteFull, получено: %v", err)
		}
	})

	t.Run("BlockAt Out Of Range", func(t *testing.T) {
		p := New(4)
		if _, err := p.BlockAt(0); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Ожидалась ErrIndexOutOfRange, получено: %v", err)
		}
		if _, err := p.BlockAt(-1); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Ожидалась ErrIndexOutOfRange для -1, получено: %v", err)
		}
	})
}

// TestFromChunk тестирует построение палитры из чанка
func TestFromChunk(t *testing.T) {
	t.Run("Uniform Chunk", func(t *testing.T) {
		chunk := world.NewChunk(vec.Vec2{X: 0, Y: 0})

		p, err := FromChunk(chunk)
		if err != nil {
			t.Fatalf("Ошибка построения палитры: %v", err)
		}
		if p.Size() != 1 {
			t.Errorf("Размер палитры %d, ожидался 1 (только Air)", p.Size())
		}
		if p.BitsPerBlock() != 1 {
			t.Errorf("Ширина %d бит, ожидался 1", p.BitsPerBlock())
		}
	})

	t.Run("Deterministic Order", func(t *testing.T) {
		// Два чанка с одинаковым набором блоков в разном порядке
		a := world.NewChunk(vec.Vec2{X: 0, Y: 0})
		a.SetBlock(0, 0, 0, block.WaterBlockID)
		a.SetBlock(1, 0, 0, block.StoneBlockID)
		a.SetBlock(2, 0, 0, block.GrassBlockID)

		b := world.NewChunk(vec.Vec2{X: 1, Y: 0})
		b.SetBlock(0, 0, 0, block.GrassBlockID)
		b.SetBlock(1, 0, 0, block.WaterBlockID)
		b.SetBlock(2, 0, 0, block.StoneBlockID)

		pa, err := FromChunk(a)
		if err != nil {
			t.Fatalf("Ошибка построения палитры A: %v", err)
		}
		pb, err := FromChunk(b)
		if err != nil {
			t.Fatalf("Ошибка построения палитры B: %v", err)
		}

		if pa.Size() != pb.Size() {
			t.Fatalf("Размеры палитр различаются: %d != %d", pa.Size(), pb.Size())
		}
		for i := 0; i < pa.Size(); i++ {
			ida, _ := pa.BlockAt(i)
			idb, _ := pb.BlockAt(i)
			if ida != idb {
				t.Errorf("Палитры различаются в позиции %d: %d != %d", i, ida, idb)
			}
		}

		// Записи отсортированы по возрастанию
		for i := 1; i < pa.Size(); i++ {
			prev, _ := pa.BlockAt(i - 1)
			cur, _ := pa.BlockAt(i)
			if prev >= cur {
				t.Errorf("Палитра не отсортирована: %d >= %d", prev, cur)
			}
		}
	})
}

// TestEncodeDecodeRoundTrip тестирует цикл упаковки и распаковки
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		blocks []block.BlockID
	}{
		{"Two Types", []block.BlockID{block.AirBlockID, block.StoneBlockID}},
		{"Three Types", []block.BlockID{block.AirBlockID, block.StoneBlockID, block.WaterBlockID}},
		{"Five Types", []block.BlockID{block.AirBlockID, block.StoneBlockID, block.WaterBlockID, block.SandBlockID, block.DirtBlockID}},
		{"Nine Types", []block.BlockID{0, 1, 2, 3, 4, 5, 100, 101, 200}},
		{"Many Types", manyIDs(40)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			chunk := world.NewChunk(vec.Vec2{X: 3, Y: -7})
			// Заполняем чанк циклически всеми типами
			i := 0
			for x := 0; x < world.ChunkSize; x++ {
				for y := 0; y < world.WorldHeight; y++ {
					for z := 0; z < world.ChunkSize; z++ {
						chunk.SetBlock(x, y, z, c.blocks[i%len(c.blocks)])
						i++
					}
				}
			}

			p, err := FromChunk(chunk)
			if err != nil {
				t.Fatalf("Ошибка построения палитры: %v", err)
			}
			if want := CalculateOptimalBits(len(c.blocks)); p.BitsPerBlock() != want {
				t.Errorf("Ширина %d бит, ожидалось %d", p.BitsPerBlock(), want)
			}

			words, err := p.EncodeChunk(chunk)
			if err != nil {
				t.Fatalf("Ошибка упаковки: %v", err)
			}
			if len(words) != WordCount(p.BitsPerBlock()) {
				t.Fatalf("Число слов %d, ожидалось %d", len(words), WordCount(p.BitsPerBlock()))
			}

			decoded := world.NewChunk(chunk.Coords)
			if err := p.DecodeChunk(words, decoded); err != nil {
				t.Fatalf("Ошибка распаковки: %v", err)
			}
			if !chunk.Equals(decoded) {
				t.Error("Распакованный чанк не совпадает с исходным")
			}
		})
	}
}

// TestEncodeBlockNotInPalette тестирует упаковку чанка с чужим блоком
func TestEncodeBlockNotInPalette(t *testing.T) {
	chunk := world.NewChunk(vec.Vec2{})
	p, err := FromChunk(chunk)
	if err != nil {
		t.Fatalf("Ошибка построения палитры: %v", err)
	}

	// Меняем чанк после построения палитры
	chunk.SetBlock(0, 0, 0, block.FlowerBlockID)

	if _, err := p.EncodeChunk(chunk); !errors.Is(err, ErrBlockNotInPalette) {
		t.Errorf("Ожидалась ErrBlockNotInPalette, получено: %v", err)
	}
}

// TestSerializeDeserialize тестирует сериализацию списка записей
func TestSerializeDeserialize(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		p := New(3)
		ids := []block.BlockID{block.AirBlockID, block.StoneBlockID, block.WaterBlockID, block.FlowerBlockID, block.IronOreBlockID}
		for _, id := range ids {
			if _, err := p.AddBlock(id); err != nil {
				t.Fatalf("Ошибка добавления: %v", err)
			}
		}

		data := p.Serialize()
		if len(data) != p.SerializedSize() {
			t.Errorf("Размер сериализации %d, ожидался %d", len(data), p.SerializedSize())
		}

		restored, err := Deserialize(data, 3)
		if err != nil {
			t.Fatalf("Ошибка десериализации: %v", err)
		}
		if restored.Size() != p.Size() {
			t.Fatalf("Размер %d, ожидался %d", restored.Size(), p.Size())
		}
		for i, id := range ids {
			got, err := restored.BlockAt(i)
			if err != nil {
				t.Fatalf("Ошибка чтения записи %d: %v", i, err)
			}
			if got != id {
				t.Errorf("Запись %d: %d, ожидалось %d", i, got, id)
			}
		}
	})

	t.Run("Truncated Data", func(t *testing.T) {
		if _, err := Deserialize([]byte{1, 0}, 2); err == nil {
			t.Error("Усечённые данные приняты без ошибки")
		}
	})

	t.Run("Count Exceeds Width", func(t *testing.T) {
		p := New(8)
		for i := 0; i < 5; i++ {
			p.AddBlock(block.BlockID(i))
		}
		data := p.Serialize()

		// 5 записей не влезают в 2 бита
		if _, err := Deserialize(data, 2); !errors.Is(err, ErrPaletteFull) {
			t.Errorf("Ожидалась ErrPaletteFull, получено: %v", err)
		}
	})

	t.Run("Length Mismatch", func(t *testing.T) {
		p := New(4)
		p.AddBlock(block.StoneBlockID)
		p.AddBlock(block.WaterBlockID)
		data := p.Serialize()

		if _, err := Deserialize(data[:len(data)-1], 4); err == nil {
			t.Error("Обрезанная палитра принята без ошибки")
		}
	})

	t.Run("Duplicate Entries", func(t *testing.T) {
		p := New(4)
		p.AddBlock(block.StoneBlockID)
		data := p.Serialize()

		// Вручную собираем палитру с дубликатом
		dup := append([]byte{}, data...)
		dup = append(dup, data[4:8]...)
		dup[0] = 2

		if _, err := Deserialize(dup, 4); err == nil {
			t.Error("Палитра с дубликатами принята без ошибки")
		}
	})

	t.Run("Invalid Bits", func(t *testing.T) {
		p := New(4)
		p.AddBlock(block.StoneBlockID)
		data := p.Serialize()

		if _, err := Deserialize(data, 0); err == nil {
			t.Error("Ширина 0 бит принята без ошибки")
		}
		if _, err := Deserialize(data, 9); err == nil {
			t.Error("Ширина 9 бит принята без ошибки")
		}
	})
}

// TestWordCount тестирует расчёт числа слов
func TestWordCount(t *testing.T) {
	// 16384 блока: 1 бит → 256 слов, 8 бит → 2048 слов
	cases := map[int]int{
		1: 256,
		2: 512,
		3: 768,
		4: 1024,
		5: 1280,
		6: 1536,
		7: 1792,
		8: 2048,
	}
	for bits, want := range cases {
		if got := WordCount(bits); got != want {
			t.Errorf("WordCount(%d) = %d, ожидалось %d", bits, got, want)
		}
	}
}

func manyIDs(n int) []block.BlockID {
	ids := make([]block.BlockID, n)
	for i := range ids {
		ids[i] = block.BlockID(i * 3)
	}
	return ids
}
