package storage

import (
	"net/http"

	"github.com/annel0/voxel-store/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus-метрики слоя хранения. Регистрируются один раз на процесс,
// поэтому объявлены на уровне пакета, а не в конструкторе хранилища.
var (
	chunksSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voxelstore",
		Name:      "chunks_saved_total",
		Help:      "Общее число сохранённых чанков.",
	})
	chunksLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voxelstore",
		Name:      "chunks_loaded_total",
		Help:      "Общее число загруженных с диска чанков.",
	})
	chunkBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voxelstore",
		Name:      "chunk_bytes_written_total",
		Help:      "Суммарный объём записанных данных чанков в байтах.",
	})
	openRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voxelstore",
		Name:      "open_regions",
		Help:      "Число открытых файлов регионов.",
	})
	saveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voxelstore",
		Name:      "chunk_save_duration_seconds",
		Help:      "Длительность сохранения чанка, включая оба fsync.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(chunksSaved, chunksLoaded, chunkBytesWritten, openRegions, saveDuration)
}

// StartMetricsHTTP запускает HTTP-эндпоинт Prometheus на указанном адресе
// (например, ":2112"). Метод неблокирующий: сервер стартует в горутине.
func StartMetricsHTTP(addr string) {
	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
}
