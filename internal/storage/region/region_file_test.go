package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/annel0/voxel-store/internal/vec"
)

func openTestRegion(t *testing.T) (*RegionFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "r.0.0.vxr")
	rf, err := Open(path)
	if err != nil {
		t.Fatalf("Ошибка открытия файла региона: %v", err)
	}
	return rf, path
}

// TestFileName тестирует именование файлов регионов
func TestFileName(t *testing.T) {
	cases := map[vec.Vec2]string{
		{X: 0, Y: 0}:    "r.0.0.vxr",
		{X: -1, Y: 3}:   "r.-1.3.vxr",
		{X: 12, Y: -40}: "r.12.-40.vxr",
	}
	for coords, want := range cases {
		if got := FileName(coords); got != want {
			t.Errorf("FileName(%v) = %q, ожидалось %q", coords, got, want)
		}
	}
}

// TestNewFileHeader тестирует инициализацию заголовка нового файла
func TestNewFileHeader(t *testing.T) {
	rf, path := openTestRegion(t)

	if rf.FileSize() != HeaderSize {
		t.Errorf("Размер нового файла %d, ожидался %d", rf.FileSize(), HeaderSize)
	}
	if rf.ChunkCount() != 0 {
		t.Errorf("Новый регион содержит %d чанков, ожидалось 0", rf.ChunkCount())
	}
	if err := rf.Close(); err != nil {
		t.Fatalf("Ошибка закрытия: %v", err)
	}

	// Заголовок на диске заполнен нулями
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Ошибка чтения файла: %v", err)
	}
	if len(raw) != HeaderSize {
		t.Fatalf("Размер файла %d, ожидался %d", len(raw), HeaderSize)
	}
	if !bytes.Equal(raw, make([]byte, HeaderSize)) {
		t.Error("Заголовок нового файла не заполнен нулями")
	}
}

// TestWriteReadRoundTrip тестирует запись и чтение записи чанка
func TestWriteReadRoundTrip(t *testing.T) {
	rf, _ := openTestRegion(t)
	defer rf.Close()

	data := []byte("chunk record payload")
	if err := rf.WriteChunk(5, 10, data); err != nil {
		t.Fatalf("Ошибка записи чанка: %v", err)
	}

	got, found, err := rf.ReadChunk(5, 10)
	if err != nil {
		t.Fatalf("Ошибка чтения чанка: %v", err)
	}
	if !found {
		t.Fatal("Записанный чанк не найден")
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Прочитано %q, ожидалось %q", got, data)
	}

	if rf.ChunkCount() != 1 {
		t.Errorf("Число чанков %d, ожидалось 1", rf.ChunkCount())
	}
	if want := int64(HeaderSize + len(data)); rf.FileSize() != want {
		t.Errorf("Размер файла %d, ожидался %d", rf.FileSize(), want)
	}
}

// TestReadEmptySlot тестирует чтение пустого слота
func TestReadEmptySlot(t *testing.T) {
	rf, _ := openTestRegion(t)
	defer rf.Close()

	data, found, err := rf.ReadChunk(0, 0)
	if err != nil {
		t.Fatalf("Чтение пустого слота вернуло ошибку: %v", err)
	}
	if found {
		t.Error("Пустой слот прочитан как занятый")
	}
	if data != nil {
		t.Errorf("Пустой слот вернул данные: %v", data)
	}
	if rf.HasChunk(0, 0) {
		t.Error("HasChunk вернул true для пустого слота")
	}
}

// TestDurabilityAcrossReopen тестирует сохранность данных после переоткрытия
func TestDurabilityAcrossReopen(t *testing.T) {
	rf, path := openTestRegion(t)

	records := map[[2]int][]byte{
		{0, 0}:   []byte("first"),
		{31, 31}: []byte("last slot"),
		{7, 20}:  bytes.Repeat([]byte{0xAB}, 4096),
	}
	for coords, data := range records {
		if err := rf.WriteChunk(coords[0], coords[1], data); err != nil {
			t.Fatalf("Ошибка записи (%d,%d): %v", coords[0], coords[1], err)
		}
	}
	if err := rf.Close(); err != nil {
		t.Fatalf("Ошибка закрытия: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Ошибка переоткрытия: %v", err)
	}
	defer reopened.Close()

	if reopened.ChunkCount() != len(records) {
		t.Errorf("После переоткрытия %d чанков, ожидалось %d", reopened.ChunkCount(), len(records))
	}
	for coords, want := range records {
		got, found, err := reopened.ReadChunk(coords[0], coords[1])
		if err != nil {
			t.Fatalf("Ошибка чтения (%d,%d): %v", coords[0], coords[1], err)
		}
		if !found {
			t.Fatalf("Чанк (%d,%d) потерян после переоткрытия", coords[0], coords[1])
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Чанк (%d,%d): данные искажены", coords[0], coords[1])
		}
	}
}

// TestOverwriteAppends тестирует перезапись чанка: старые данные осиротевают
func TestOverwriteAppends(t *testing.T) {
	rf, _ := openTestRegion(t)
	defer rf.Close()

	first := []byte("version one")
	second := []byte("version two, longer")

	if err := rf.WriteChunk(3, 3, first); err != nil {
		t.Fatalf("Ошибка первой записи: %v", err)
	}
	if err := rf.WriteChunk(3, 3, second); err != nil {
		t.Fatalf("Ошибка перезаписи: %v", err)
	}

	got, found, err := rf.ReadChunk(3, 3)
	if err != nil || !found {
		t.Fatalf("Ошибка чтения после перезаписи: %v (found=%v)", err, found)
	}
	if !bytes.Equal(got, second) {
		t.Errorf("Прочитана не последняя версия: %q", got)
	}

	// Файл только растёт: обе версии лежат в области данных
	if want := int64(HeaderSize + len(first) + len(second)); rf.FileSize() != want {
		t.Errorf("Размер файла %d, ожидался %d", rf.FileSize(), want)
	}
	if rf.ChunkCount() != 1 {
		t.Errorf("Число чанков %d, ожидалось 1", rf.ChunkCount())
	}

	chunks, dataBytes := rf.Stats()
	if chunks != 1 || dataBytes != int64(len(second)) {
		t.Errorf("Stats() = (%d, %d), ожидалось (1, %d)", chunks, dataBytes, len(second))
	}
}

// TestDeleteChunk тестирует очистку слота
func TestDeleteChunk(t *testing.T) {
	rf, path := openTestRegion(t)

	if err := rf.WriteChunk(1, 2, []byte("doomed")); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}
	sizeBefore := rf.FileSize()

	if err := rf.DeleteChunk(1, 2); err != nil {
		t.Fatalf("Ошибка удаления: %v", err)
	}
	if rf.HasChunk(1, 2) {
		t.Error("Слот занят после удаления")
	}
	_, found, err := rf.ReadChunk(1, 2)
	if err != nil || found {
		t.Errorf("Удалённый чанк читается: found=%v err=%v", found, err)
	}

	// Данные не освобождаются
	if rf.FileSize() != sizeBefore {
		t.Errorf("Размер файла изменился при удалении: %d -> %d", sizeBefore, rf.FileSize())
	}

	// Повторное удаление — no-op
	if err := rf.DeleteChunk(1, 2); err != nil {
		t.Errorf("Повторное удаление вернуло ошибку: %v", err)
	}

	// Удаление переживает переоткрытие
	rf.Close()
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Ошибка переоткрытия: %v", err)
	}
	defer reopened.Close()
	if reopened.HasChunk(1, 2) {
		t.Error("Удалённый слот занят после переоткрытия")
	}
}

// TestInvalidInput тестирует валидацию координат и размеров
func TestInvalidInput(t *testing.T) {
	rf, _ := openTestRegion(t)
	defer rf.Close()

	badCoords := [][2]int{{-1, 0}, {0, -1}, {32, 0}, {0, 32}, {100, 100}}
	for _, c := range badCoords {
		if err := rf.WriteChunk(c[0], c[1], []byte("x")); !errors.Is(err, ErrInvalidCoords) {
			t.Errorf("WriteChunk(%d,%d): ожидалась ErrInvalidCoords, получено %v", c[0], c[1], err)
		}
		if _, _, err := rf.ReadChunk(c[0], c[1]); !errors.Is(err, ErrInvalidCoords) {
			t.Errorf("ReadChunk(%d,%d): ожидалась ErrInvalidCoords, получено %v", c[0], c[1], err)
		}
		if rf.HasChunk(c[0], c[1]) {
			t.Errorf("HasChunk(%d,%d) вернул true", c[0], c[1])
		}
	}

	if err := rf.WriteChunk(0, 0, nil); err == nil {
		t.Error("Пустая запись принята без ошибки")
	}
	if err := rf.WriteChunk(0, 0, make([]byte, MaxChunkDataSize+1)); err == nil {
		t.Error("Запись больше MaxChunkDataSize принята без ошибки")
	}
}

// corruptSlot подменяет заголовок слота на диске указанными значениями
func corruptSlot(t *testing.T, path string, idx int, offset, length int32) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("Ошибка открытия файла для порчи: %v", err)
	}
	defer f.Close()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(offset))
	if _, err := f.WriteAt(buf[:], int64(idx*4)); err != nil {
		t.Fatalf("Ошибка записи смещения: %v", err)
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(length))
	if _, err := f.WriteAt(buf[:], int64(RegionSlots*4+idx*4)); err != nil {
		t.Fatalf("Ошибка записи длины: %v", err)
	}
}

// TestSelfHealing тестирует очистку повреждённых слотов заголовка
func TestSelfHealing(t *testing.T) {
	cases := []struct {
		name   string
		offset int32
		length int32
	}{
		{"Offset Inside Header", 100, 50},
		{"Negative Length", HeaderSize, -5},
		{"Length Too Large", HeaderSize, MaxChunkDataSize + 1},
		{"Beyond File End", HeaderSize + 1000, 5000},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rf, path := openTestRegion(t)

			// Сосед, который должен пережить излечение
			if err := rf.WriteChunk(9, 9, []byte("survivor")); err != nil {
				t.Fatalf("Ошибка записи соседа: %v", err)
			}
			rf.Close()

			corruptSlot(t, path, slotIndex(4, 4), c.offset, c.length)

			reopened, err := Open(path)
			if err != nil {
				t.Fatalf("Ошибка переоткрытия: %v", err)
			}
			defer reopened.Close()

			// Повреждённый слот читается как пустой
			data, found, err := reopened.ReadChunk(4, 4)
			if err != nil {
				t.Fatalf("Чтение повреждённого слота вернуло ошибку: %v", err)
			}
			if found || data != nil {
				t.Error("Повреждённый слот прочитан как занятый")
			}
			if reopened.HealedCount() != 1 {
				t.Errorf("HealedCount = %d, ожидалось 1", reopened.HealedCount())
			}

			// Сосед не пострадал
			got, found, err := reopened.ReadChunk(9, 9)
			if err != nil || !found || !bytes.Equal(got, []byte("survivor")) {
				t.Errorf("Соседний чанк пострадал: found=%v err=%v data=%q", found, err, got)
			}

			// Излечение долговечно: после переоткрытия слот пуст без повторного излечения
			reopened.Close()
			third, err := Open(path)
			if err != nil {
				t.Fatalf("Ошибка третьего открытия: %v", err)
			}
			defer third.Close()

			if _, found, _ := third.ReadChunk(4, 4); found {
				t.Error("Излеченный слот снова занят")
			}
			if third.HealedCount() != 0 {
				t.Errorf("Слот излечён повторно: HealedCount = %d", third.HealedCount())
			}
		})
	}
}

// TestHealedSlotWritable тестирует запись в излеченный слот
func TestHealedSlotWritable(t *testing.T) {
	rf, path := openTestRegion(t)
	rf.Close()

	corruptSlot(t, path, slotIndex(0, 1), 50, 50)

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Ошибка переоткрытия: %v", err)
	}
	defer reopened.Close()

	if _, found, _ := reopened.ReadChunk(0, 1); found {
		t.Fatal("Повреждённый слот не излечен")
	}

	if err := reopened.WriteChunk(0, 1, []byte("fresh")); err != nil {
		t.Fatalf("Ошибка записи в излеченный слот: %v", err)
	}
	got, found, err := reopened.ReadChunk(0, 1)
	if err != nil || !found || !bytes.Equal(got, []byte("fresh")) {
		t.Errorf("Излеченный слот не перезаписался: found=%v err=%v data=%q", found, err, got)
	}
}

// TestClosedRegion тестирует операции над закрытым файлом
func TestClosedRegion(t *testing.T) {
	rf, _ := openTestRegion(t)
	if err := rf.Close(); err != nil {
		t.Fatalf("Ошибка закрытия: %v", err)
	}

	if err := rf.WriteChunk(0, 0, []byte("x")); !errors.Is(err, ErrRegionClosed) {
		t.Errorf("WriteChunk после Close: ожидалась ErrRegionClosed, получено %v", err)
	}
	if _, _, err := rf.ReadChunk(0, 0); !errors.Is(err, ErrRegionClosed) {
		t.Errorf("ReadChunk после Close: ожидалась ErrRegionClosed, получено %v", err)
	}
	if err := rf.Flush(); !errors.Is(err, ErrRegionClosed) {
		t.Errorf("Flush после Close: ожидалась ErrRegionClosed, получено %v", err)
	}

	// Повторный Close — no-op
	if err := rf.Close(); err != nil {
		t.Errorf("Повторный Close вернул ошибку: %v", err)
	}
}

// TestConcurrentAccess тестирует параллельные записи и чтения разных слотов
func TestConcurrentAccess(t *testing.T) {
	rf, _ := openTestRegion(t)
	defer rf.Close()

	var wg sync.WaitGroup
	for z := 0; z < 8; z++ {
		for x := 0; x < 8; x++ {
			wg.Add(1)
			go func(x, z int) {
				defer wg.Done()
				data := []byte(fmt.Sprintf("chunk-%d-%d", x, z))
				if err := rf.WriteChunk(x, z, data); err != nil {
					t.Errorf("Ошибка параллельной записи (%d,%d): %v", x, z, err)
					return
				}
				got, found, err := rf.ReadChunk(x, z)
				if err != nil || !found || !bytes.Equal(got, data) {
					t.Errorf("Ошибка параллельного чтения (%d,%d): found=%v err=%v", x, z, found, err)
				}
			}(x, z)
		}
	}
	wg.Wait()

	if rf.ChunkCount() != 64 {
		t.Errorf("Число чанков %d, ожидалось 64", rf.ChunkCount())
	}
}
