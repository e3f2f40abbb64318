package block

// BlockID представляет стабильный идентификатор типа блока.
// Идентификаторы сохраняются на диск (записи палитры), поэтому
// менять их между версиями нельзя.
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	WaterBlockID                // 3
	SandBlockID                 // 4
	DirtBlockID                 // 5

	// Для возможности расширения оставляем большие промежутки между категориями

	// Декоративные блоки (начиная с 100)
	FlowerBlockID BlockID = 100 // Цветок
	TreeBlockID   BlockID = 101 // Дерево
	CactusBlockID BlockID = 102 // Кактус

	// Руды (начиная с 200)
	CoalOreBlockID BlockID = 200 // Угольная руда
	IronOreBlockID BlockID = 201 // Железная руда
)

// BlockType описывает тип блока в реестре
type BlockType struct {
	ID     BlockID
	Name   string
	Solid  bool
	Opaque bool
}

// Registry хранит известные типы блоков.
// Передаётся явно по ссылке, а не через глобальное состояние,
// чтобы несколько миров могли использовать разные наборы блоков.
type Registry struct {
	types map[BlockID]BlockType
}

// NewRegistry создаёт пустой реестр блоков
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[BlockID]BlockType),
	}
}

// NewDefaultRegistry создаёт реестр со стандартным набором блоков
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BlockType{ID: AirBlockID, Name: "air", Solid: false, Opaque: false})
	r.Register(BlockType{ID: StoneBlockID, Name: "stone", Solid: true, Opaque: true})
	r.Register(BlockType{ID: GrassBlockID, Name: "grass", Solid: true, Opaque: true})
	r.Register(BlockType{ID: WaterBlockID, Name: "water", Solid: false, Opaque: false})
	r.Register(BlockType{ID: SandBlockID, Name: "sand", Solid: true, Opaque: true})
	r.Register(BlockType{ID: DirtBlockID, Name: "dirt", Solid: true, Opaque: true})
	r.Register(BlockType{ID: FlowerBlockID, Name: "flower", Solid: false, Opaque: false})
	r.Register(BlockType{ID: TreeBlockID, Name: "tree", Solid: true, Opaque: true})
	r.Register(BlockType{ID: CactusBlockID, Name: "cactus", Solid: true, Opaque: false})
	r.Register(BlockType{ID: CoalOreBlockID, Name: "coal_ore", Solid: true, Opaque: true})
	r.Register(BlockType{ID: IronOreBlockID, Name: "iron_ore", Solid: true, Opaque: true})
	return r
}

// Register добавляет тип блока в реестр
func (r *Registry) Register(t BlockType) {
	r.types[t.ID] = t
}

// GetByID возвращает тип блока по его ID
func (r *Registry) GetByID(id BlockID) (BlockType, bool) {
	t, exists := r.types[id]
	return t, exists
}

// IsValidBlockID проверяет, зарегистрирован ли ID в реестре
func (r *Registry) IsValidBlockID(id BlockID) bool {
	_, exists := r.types[id]
	return exists
}

// Count возвращает количество зарегистрированных типов
func (r *Registry) Count() int {
	return len(r.types)
}
