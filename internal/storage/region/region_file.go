package region

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/annel0/voxel-store/internal/logging"
	"github.com/annel0/voxel-store/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
)

// Параметры формата файла региона. Менять нельзя — формат на диске.
const (
	// RegionSize — размер региона в чанках по каждой оси
	RegionSize = 32

	// RegionSlots — число слотов чанков в одном регионе (32x32)
	RegionSlots = RegionSize * RegionSize

	// HeaderSize — размер заголовка: 1024 int32 смещений + 1024 int32 длин
	HeaderSize = RegionSlots*4 + RegionSlots*4

	// MaxChunkDataSize — максимальный размер записи чанка.
	// Заголовок с длиной больше этого значения считается повреждённым.
	MaxChunkDataSize = 10_000_000
)

// Ошибки файла региона
var (
	// ErrInvalidCoords — локальные координаты вне диапазона [0,32)
	ErrInvalidCoords = errors.New("локальные координаты вне диапазона региона")

	// ErrRegionClosed — операция над закрытым файлом региона
	ErrRegionClosed = errors.New("файл региона закрыт")

	// ErrRegionFull — файл региона превысил адресуемый int32 размер
	ErrRegionFull = errors.New("файл региона переполнен")
)

// corruptionsHealed считает самоизлеченные повреждённые слоты заголовка
var corruptionsHealed = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "voxelstore",
	Name:      "region_corruptions_healed_total",
	Help:      "Число повреждённых слотов заголовка, очищенных при чтении.",
})

func init() {
	prometheus.MustRegister(corruptionsHealed)
}

// FileName возвращает имя файла для региона с указанными координатами
func FileName(coords vec.Vec2) string {
	return fmt.Sprintf("r.%d.%d.vxr", coords.X, coords.Y)
}

// RegionFile — долговечное хранилище ключ→запись для 1024 слотов одного
// региона 32x32 чанка. Экземпляр монопольно владеет файловым дескриптором
// и копией заголовка в памяти от Open до Close.
//
// Формат файла: заголовок 8192 байта (1024 little-endian int32 смещений,
// затем 1024 int32 длин, индекс localX + localZ*32), далее append-only
// область данных. Пустой слот — offset==0 && length==0. Перезаписанные
// данные не освобождаются: уплотнение не выполняется.
type RegionFile struct {
	path     string
	file     *os.File
	offsets  [RegionSlots]int32
	lengths  [RegionSlots]int32
	fileSize int64
	closed   bool
	healed   atomic.Int64
	mu       sync.RWMutex
}

// Open открывает (или создаёт) файл региона по указанному пути.
// У нового или усечённого файла заголовок явно заполняется нулями
// и fsync-ится до записи каких-либо данных чанков.
func Open(path string) (*RegionFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть файл региона %s: %w", path, err)
	}

	r := &RegionFile{
		path: path,
		file: file,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("не удалось получить размер файла %s: %w", path, err)
	}

	if info.Size() < HeaderSize {
		// Новый (или оборванный при создании) файл: известно-пустой заголовок
		if _, err := file.WriteAt(make([]byte, HeaderSize), 0); err != nil {
			file.Close()
			return nil, fmt.Errorf("не удалось инициализировать заголовок %s: %w", path, err)
		}
		if err := file.Sync(); err != nil {
			file.Close()
			return nil, fmt.Errorf("не удалось синхронизировать заголовок %s: %w", path, err)
		}
		r.fileSize = HeaderSize
		return r, nil
	}

	// Существующий файл: читаем заголовок в память
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(file, 0, HeaderSize), header); err != nil {
		file.Close()
		return nil, fmt.Errorf("не удалось прочитать заголовок %s: %w", path, err)
	}
	for i := 0; i < RegionSlots; i++ {
		r.offsets[i] = int32(binary.LittleEndian.Uint32(header[i*4:]))
		r.lengths[i] = int32(binary.LittleEndian.Uint32(header[RegionSlots*4+i*4:]))
	}
	r.fileSize = info.Size()

	return r, nil
}

// validateCoords проверяет, что локальные координаты лежат в [0,32)
func validateCoords(localX, localZ int) error {
	if localX < 0 || localX >= RegionSize || localZ < 0 || localZ >= RegionSize {
		return fmt.Errorf("%w: (%d,%d)", ErrInvalidCoords, localX, localZ)
	}
	return nil
}

// slotIndex возвращает индекс слота заголовка
func slotIndex(localX, localZ int) int {
	return localX + localZ*RegionSize
}

// slotValid проверяет инварианты непустого слота заголовка
func slotValid(offset, length int32, fileSize int64) bool {
	if offset < HeaderSize {
		return false
	}
	if length < 0 || length > MaxChunkDataSize {
		return false
	}
	return int64(offset)+int64(length) <= fileSize
}

// ReadChunk возвращает запись чанка для локальных координат.
// Второй результат false означает, что слот пуст. Повреждённый слот
// заголовка очищается на месте (self-healing) и читается как пустой:
// вызывающий код должен перегенерировать чанк.
func (r *RegionFile) ReadChunk(localX, localZ int) ([]byte, bool, error) {
	if err := validateCoords(localX, localZ); err != nil {
		return nil, false, err
	}

	idx := slotIndex(localX, localZ)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, false, ErrRegionClosed
	}

	offset, length := r.offsets[idx], r.lengths[idx]
	if offset == 0 && length == 0 {
		r.mu.RUnlock()
		return nil, false, nil
	}

	if !slotValid(offset, length, r.fileSize) {
		r.mu.RUnlock()
		r.healSlot(localX, localZ)
		return nil, false, nil
	}

	data := make([]byte, length)
	_, err := r.file.ReadAt(data, int64(offset))
	r.mu.RUnlock()

	if err != nil {
		return nil, false, fmt.Errorf("не удалось прочитать чанк (%d,%d) из %s: %w",
			localX, localZ, r.path, err)
	}
	return data, true, nil
}

// healSlot очищает повреждённый слот заголовка в памяти и на диске.
// Потеря одного чанка изолирована: остальные слоты региона не затрагиваются.
func (r *RegionFile) healSlot(localX, localZ int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	idx := slotIndex(localX, localZ)
	offset, length := r.offsets[idx], r.lengths[idx]

	// Слот могли успеть перезаписать корректными данными
	if offset == 0 && length == 0 {
		return
	}
	if slotValid(offset, length, r.fileSize) {
		return
	}

	logging.Warn("⚠️  Повреждённый слот (%d,%d) в %s: offset=%d length=%d fileSize=%d — слот очищен",
		localX, localZ, r.path, offset, length, r.fileSize)

	r.offsets[idx] = 0
	r.lengths[idx] = 0

	if err := r.writeHeaderSlot(idx); err != nil {
		logging.Error("Не удалось записать очищенный слот (%d,%d) в %s: %v", localX, localZ, r.path, err)
		return
	}
	if err := r.file.Sync(); err != nil {
		logging.Error("Не удалось синхронизировать заголовок %s: %v", r.path, err)
		return
	}

	r.healed.Add(1)
	corruptionsHealed.Inc()
}

// WriteChunk дописывает запись чанка в конец файла и обновляет слот заголовка.
//
// Порядок долговечности строгий: данные пишутся и fsync-ятся ДО обновления
// заголовка, затем fsync-ится заголовок. После сбоя заголовок в худшем
// случае указывает на предыдущую версию данных или пуст, но никогда —
// на недописанную область.
func (r *RegionFile) WriteChunk(localX, localZ int, data []byte) error {
	if err := validateCoords(localX, localZ); err != nil {
		return err
	}
	if len(data) == 0 || len(data) > MaxChunkDataSize {
		return fmt.Errorf("недопустимый размер записи чанка: %d байт", len(data))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegionClosed
	}

	offset := r.fileSize
	if offset+int64(len(data)) > math.MaxInt32 {
		return fmt.Errorf("%w: %s", ErrRegionFull, r.path)
	}

	// 1. Данные — в конец файла
	if _, err := r.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("не удалось записать чанк (%d,%d) в %s: %w", localX, localZ, r.path, err)
	}

	// 2. fsync данных до какого-либо касания заголовка
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("не удалось синхронизировать данные %s: %w", r.path, err)
	}

	// 3. Обновляем слот в памяти и на диске
	idx := slotIndex(localX, localZ)
	r.offsets[idx] = int32(offset)
	r.lengths[idx] = int32(len(data))
	r.fileSize = offset + int64(len(data))

	if err := r.writeHeaderSlot(idx); err != nil {
		return err
	}

	// 4. fsync заголовка
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("не удалось синхронизировать заголовок %s: %w", r.path, err)
	}
	return nil
}

// writeHeaderSlot записывает 8 байт заголовка одного слота (4 байта
// смещения и 4 байта длины). Вызывается под write-блокировкой.
func (r *RegionFile) writeHeaderSlot(idx int) error {
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], uint32(r.offsets[idx]))
	if _, err := r.file.WriteAt(buf[:], int64(idx*4)); err != nil {
		return fmt.Errorf("не удалось записать смещение слота %d в %s: %w", idx, r.path, err)
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(r.lengths[idx]))
	if _, err := r.file.WriteAt(buf[:], int64(RegionSlots*4+idx*4)); err != nil {
		return fmt.Errorf("не удалось записать длину слота %d в %s: %w", idx, r.path, err)
	}
	return nil
}

// DeleteChunk очищает слот заголовка чанка. Сами данные остаются в файле
// осиротевшими — область данных append-only и не уплотняется.
func (r *RegionFile) DeleteChunk(localX, localZ int) error {
	if err := validateCoords(localX, localZ); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegionClosed
	}

	idx := slotIndex(localX, localZ)
	if r.offsets[idx] == 0 && r.lengths[idx] == 0 {
		return nil
	}

	r.offsets[idx] = 0
	r.lengths[idx] = 0

	if err := r.writeHeaderSlot(idx); err != nil {
		return err
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("не удалось синхронизировать заголовок %s: %w", r.path, err)
	}
	return nil
}

// HasChunk сообщает, занят ли слот корректной записью
func (r *RegionFile) HasChunk(localX, localZ int) bool {
	if validateCoords(localX, localZ) != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}

	idx := slotIndex(localX, localZ)
	offset, length := r.offsets[idx], r.lengths[idx]
	if offset == 0 && length == 0 {
		return false
	}
	return slotValid(offset, length, r.fileSize)
}

// ChunkCount возвращает число занятых слотов региона
func (r *RegionFile) ChunkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for i := 0; i < RegionSlots; i++ {
		if r.offsets[i] != 0 || r.lengths[i] != 0 {
			count++
		}
	}
	return count
}

// FileSize возвращает текущий размер файла региона
func (r *RegionFile) FileSize() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.fileSize
}

// Stats возвращает число занятых слотов и суммарный размер живых записей.
// Разница fileSize - HeaderSize - dataBytes — осиротевшие байты.
func (r *RegionFile) Stats() (chunks int, dataBytes int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < RegionSlots; i++ {
		if r.offsets[i] != 0 || r.lengths[i] != 0 {
			chunks++
			dataBytes += int64(r.lengths[i])
		}
	}
	return chunks, dataBytes
}

// HealedCount возвращает число слотов, самоизлеченных этим экземпляром
func (r *RegionFile) HealedCount() int64 {
	return r.healed.Load()
}

// Path возвращает путь к файлу региона
func (r *RegionFile) Path() string {
	return r.path
}

// Flush принудительно сбрасывает буферы ОС на диск
func (r *RegionFile) Flush() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRegionClosed
	}
	return r.file.Sync()
}

// Close синхронизирует и освобождает файловый дескриптор.
// После Close экземпляр непригоден: для повторного открытия того же
// пути создаётся новый RegionFile.
func (r *RegionFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("не удалось синхронизировать %s при закрытии: %w", r.path, err)
	}
	return r.file.Close()
}
