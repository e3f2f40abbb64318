package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/annel0/voxel-store/internal/config"
	"github.com/annel0/voxel-store/internal/storage"
	"github.com/annel0/voxel-store/internal/storage/backup"
	"github.com/annel0/voxel-store/internal/storage/region"
	"github.com/annel0/voxel-store/internal/vec"
	"github.com/annel0/voxel-store/internal/world"
	"github.com/annel0/voxel-store/internal/world/block"
)

func main() {
	var (
		command = flag.String("cmd", "stats", "Command: stats, verify, dump, backup, restore")
		path    = flag.String("path", "", "Region file, region directory or world directory")
		localX  = flag.Int("x", 0, "Local chunk X in region [0,32) (dump only)")
		localZ  = flag.Int("z", 0, "Local chunk Z in region [0,32) (dump only)")
		out     = flag.String("out", "", "Archive path (backup) or target directory (restore)")
		level   = flag.Int("level", 0, "Zstd compression level 1-4, 0 = from config/default")
		cfgPath = flag.String("config", "", "Optional YAML config path")
	)
	flag.Parse()

	if *path == "" {
		fmt.Println("❌ -path is required")
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch *command {
	case "stats":
		err = runStats(*path)
	case "verify":
		err = runVerify(*path)
	case "dump":
		err = runDump(*path, *localX, *localZ)
	case "backup":
		err = runBackup(*path, *out, *level, *cfgPath)
	case "restore":
		err = runRestore(*path, *out)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: stats, verify, dump, backup, restore")
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

// collectFiles возвращает список файлов регионов для пути (файл или директория)
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "r.*.*.vxr"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("в %s нет файлов регионов", path)
	}
	return matches, nil
}

// runStats выводит заполненность и осиротевшие байты по каждому региону
func runStats(path string) error {
	files, err := collectFiles(path)
	if err != nil {
		return err
	}

	var totalChunks, totalFiles int
	var totalSize, totalOrphaned int64

	fmt.Println("📊 Region statistics")
	for _, f := range files {
		rf, err := region.Open(f)
		if err != nil {
			return err
		}

		chunks, dataBytes := rf.Stats()
		size := rf.FileSize()
		orphaned := size - region.HeaderSize - dataBytes
		rf.Close()

		fmt.Printf("  %s: %d/%d chunks, %d bytes (%d orphaned)\n",
			filepath.Base(f), chunks, region.RegionSlots, size, orphaned)

		totalFiles++
		totalChunks += chunks
		totalSize += size
		totalOrphaned += orphaned
	}

	fmt.Printf("\nTotal: %d files, %d chunks, %d bytes, %d orphaned bytes\n",
		totalFiles, totalChunks, totalSize, totalOrphaned)
	return nil
}

// runVerify читает и декодирует каждый занятый слот каждого региона.
// Повреждённые слоты заголовка при этом самоизлечиваются.
func runVerify(path string) error {
	files, err := collectFiles(path)
	if err != nil {
		return err
	}

	var checked, bad, healed int
	fmt.Println("🔍 Verifying region files")
	for _, f := range files {
		rf, err := region.Open(f)
		if err != nil {
			return err
		}

		for z := 0; z < region.RegionSize; z++ {
			for x := 0; x < region.RegionSize; x++ {
				data, found, err := rf.ReadChunk(x, z)
				if err != nil {
					fmt.Printf("  ❌ %s (%d,%d): read: %v\n", filepath.Base(f), x, z, err)
					bad++
					continue
				}
				if !found {
					continue
				}
				checked++

				p, words, err := storage.DecodeChunkRecord(data)
				if err != nil {
					fmt.Printf("  ❌ %s (%d,%d): decode: %v\n", filepath.Base(f), x, z, err)
					bad++
					continue
				}
				chunk := world.NewChunk(vec.Vec2{})
				if err := p.DecodeChunk(words, chunk); err != nil {
					fmt.Printf("  ❌ %s (%d,%d): unpack: %v\n", filepath.Base(f), x, z, err)
					bad++
				}
			}
		}

		healed += int(rf.HealedCount())
		rf.Close()
	}

	fmt.Printf("\nChecked %d chunks: %d unreadable, %d header slots healed\n", checked, bad, healed)
	if bad > 0 {
		return fmt.Errorf("найдено %d нечитаемых записей", bad)
	}
	return nil
}

// runDump выводит палитру и гистограмму блоков одного чанка
func runDump(path string, localX, localZ int) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("dump требует путь к файлу региона, не к директории")
	}

	rf, err := region.Open(path)
	if err != nil {
		return err
	}
	defer rf.Close()

	data, found, err := rf.ReadChunk(localX, localZ)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("Slot (%d,%d) is empty\n", localX, localZ)
		return nil
	}

	p, words, err := storage.DecodeChunkRecord(data)
	if err != nil {
		return err
	}

	chunk := world.NewChunk(vec.Vec2{})
	if err := p.DecodeChunk(words, chunk); err != nil {
		return err
	}

	registry := block.NewDefaultRegistry()

	fmt.Printf("📦 Chunk (%d,%d) in %s\n", localX, localZ, filepath.Base(path))
	fmt.Printf("Record: %d bytes, %d bits per block, palette of %d\n", len(data), p.BitsPerBlock(), p.Size())

	// Гистограмма по блокам
	counts := make(map[block.BlockID]int)
	for x := 0; x < world.ChunkSize; x++ {
		for y := 0; y < world.WorldHeight; y++ {
			for z := 0; z < world.ChunkSize; z++ {
				counts[chunk.Blocks[x][y][z]]++
			}
		}
	}

	fmt.Println("\nPalette:")
	for i := 0; i < p.Size(); i++ {
		id, err := p.BlockAt(i)
		if err != nil {
			return err
		}
		name := "?"
		if bt, ok := registry.GetByID(id); ok {
			name = bt.Name
		}
		fmt.Printf("  [%d] id=%d %-10s %d blocks\n", i, id, name, counts[id])
	}
	return nil
}

// runBackup упаковывает директорию мира в архив
func runBackup(worldDir, out string, level int, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg != nil {
		if level == 0 {
			level = cfg.Backup.CompressionLevel
		}
		if out == "" && cfg.Backup.Dir != "" {
			out = filepath.Join(cfg.Backup.Dir,
				fmt.Sprintf("world_%s.bak", time.Now().Format("2006-01-02_15-04-05")))
		}
	}
	if out == "" {
		return fmt.Errorf("-out не задан (и backup.dir отсутствует в конфиге)")
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := backup.Export(worldDir, out, level); err != nil {
		return err
	}
	fmt.Printf("✅ Backup written to %s\n", out)
	return nil
}

// runRestore разворачивает архив в директорию мира
func runRestore(archive, out string) error {
	if out == "" {
		return fmt.Errorf("-out не задан")
	}
	manifest, err := backup.Import(archive, out)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Restored %d files to %s\n", manifest.FileCount, out)
	return nil
}
