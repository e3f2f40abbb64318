package vec

import "math"

// Vec2 представляет горизонтальные координаты (пара X/Z мира).
// Используется и для мировых координат столбцов, и для координат чанков.
type Vec2 struct {
	X, Y int
}

// ToChunkCoords преобразует глобальные координаты блока в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Y >> 4} // Деление на 16
}

// ToRegionCoords преобразует координаты чанка в координаты региона.
// Регион — область 32x32 чанка, хранящаяся в одном файле.
func (v Vec2) ToRegionCoords() Vec2 {
	return Vec2{X: v.X >> 5, Y: v.Y >> 5} // Деление на 32 (floor и для отрицательных)
}

// LocalInChunk возвращает локальные координаты блока внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Y: v.Y & 0xF} // Модуль 16
}

// LocalInRegion возвращает локальные координаты чанка внутри региона, диапазон [0,32)
func (v Vec2) LocalInRegion() Vec2 {
	return Vec2{X: v.X & 0x1F, Y: v.Y & 0x1F} // Модуль 32
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
