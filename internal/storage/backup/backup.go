// Package backup экспортирует и импортирует директорию мира как один
// сжатый архив (tar + zstd). Первая запись архива — manifest.json с
// магией и версией формата: импорт отказывается разворачивать архивы
// неизвестного происхождения.
package backup

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/annel0/voxel-store/internal/logging"
	"github.com/klauspost/compress/zstd"
)

const (
	manifestName    = "manifest.json"
	manifestMagic   = "VXBK"
	manifestVersion = 1
)

// ErrBadArchive — архив не является резервной копией мира
var ErrBadArchive = errors.New("неверный формат архива резервной копии")

// Manifest описывает содержимое резервной копии
type Manifest struct {
	Magic     string `json:"magic"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	FileCount int    `json:"file_count"`
}

// Export упаковывает директорию мира srcDir в архив outPath.
// level — уровень сжатия zstd (1..4 в терминах klauspost; 0 = по умолчанию).
func Export(srcDir, outPath string, level int) error {
	// Сначала собираем список файлов: число файлов входит в манифест
	var files []string
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("не удалось обойти директорию мира %s: %w", srcDir, err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("не удалось создать архив %s: %w", outPath, err)
	}
	defer out.Close()

	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return fmt.Errorf("не удалось создать zstd-энкодер: %w", err)
	}
	tw := tar.NewWriter(zw)

	manifest, err := json.Marshal(Manifest{
		Magic:     manifestMagic,
		Version:   manifestVersion,
		CreatedAt: time.Now().Unix(),
		FileCount: len(files),
	})
	if err != nil {
		return err
	}
	if err := writeEntry(tw, manifestName, manifest); err != nil {
		return err
	}

	for _, path := range files {
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("не удалось прочитать %s: %w", path, err)
		}
		if err := writeEntry(tw, filepath.ToSlash(rel), data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}

	logging.Info("📦 Резервная копия мира создана: %s (%d файлов)", outPath, len(files))
	return nil
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("ошибка записи заголовка %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("ошибка записи %s: %w", name, err)
	}
	return nil
}

// Import разворачивает архив inPath в директорию dstDir.
// Первой записью обязан идти валидный манифест, иначе ErrBadArchive.
func Import(inPath, dstDir string) (*Manifest, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть архив %s: %w", inPath, err)
	}
	defer in.Close()

	zr, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	hdr, err := tr.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	if hdr.Name != manifestName {
		return nil, fmt.Errorf("%w: первая запись %q, ожидался %s", ErrBadArchive, hdr.Name, manifestName)
	}

	var manifest Manifest
	if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	if manifest.Magic != manifestMagic {
		return nil, fmt.Errorf("%w: магия %q", ErrBadArchive, manifest.Magic)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("%w: версия %d, поддерживается %d", ErrBadArchive, manifest.Version, manifestVersion)
	}

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, err
	}

	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}

		// Защита от выхода за пределы dstDir через ".." в именах
		clean := filepath.Clean(hdr.Name)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return nil, fmt.Errorf("%w: недопустимый путь %q", ErrBadArchive, hdr.Name)
		}
		target := filepath.Join(dstDir, clean)

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return nil, err
		}
		restored++
	}

	logging.Info("📦 Резервная копия восстановлена в %s (%d файлов)", dstDir, restored)
	return &manifest, nil
}
