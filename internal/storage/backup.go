package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// BackupInfo describes a written backup file.
type BackupInfo struct {
	Path      string
	Size      int64
	Checksum  string
	Encrypted bool
	CreatedAt time.Time
}

// Backup writes a consistent copy of the database to dest using VACUUM INTO.
// When enc is non-nil the copy is encrypted. dest must not exist.
func (db *DB) Backup(ctx context.Context, dest string, enc *EncryptionConfig) (*BackupInfo, error) {
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup file already exists: %s", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	plain := dest
	if enc != nil {
		plain = dest + ".plain.tmp"
		defer func() { _ = os.Remove(plain) }()
	}

	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO ?", plain); err != nil {
		return nil, fmt.Errorf("failed to back up database: %w", err)
	}
	if err := VerifyBackup(plain); err != nil {
		_ = os.Remove(plain)
		return nil, fmt.Errorf("backup verification failed: %w", err)
	}

	if enc != nil {
		if err := EncryptFile(plain, dest, enc); err != nil {
			return nil, err
		}
	}
	return describeBackup(dest, enc != nil)
}

// Restore replaces the database file at dbPath with a backup. Encrypted
// backups need enc. The database must not be open. An existing database is
// kept next to it with an .old suffix.
func Restore(backupPath, dbPath string, enc *EncryptionConfig) error {
	encrypted, err := IsEncrypted(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	tempPath := dbPath + ".restore.tmp"
	defer func() { _ = os.Remove(tempPath) }()

	if encrypted {
		if enc == nil {
			return fmt.Errorf("backup %s is encrypted: passphrase required", backupPath)
		}
		if err := DecryptFile(backupPath, tempPath, enc); err != nil {
			return err
		}
	} else if err := copyFile(backupPath, tempPath); err != nil {
		return err
	}

	if err := VerifyBackup(tempPath); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	if _, err := os.Stat(dbPath); err == nil {
		old := dbPath + ".old." + time.Now().Format("20060102_150405")
		if err := os.Rename(dbPath, old); err != nil {
			return fmt.Errorf("failed to move current database aside: %w", err)
		}
	}
	// WAL side files belong to the replaced database.
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")

	if err := os.Rename(tempPath, dbPath); err != nil {
		return fmt.Errorf("failed to replace database with backup: %w", err)
	}
	return nil
}

// VerifyBackup checks that path is an intact database holding prediction runs.
func VerifyBackup(path string) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup as database: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check backup integrity: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	var runs int
	if err := conn.QueryRow("SELECT COUNT(*) FROM prediction_runs").Scan(&runs); err != nil {
		return fmt.Errorf("backup has no prediction history: %w", err)
	}
	return nil
}

func describeBackup(path string, encrypted bool) (*BackupInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	sum, err := calculateChecksum(path)
	if err != nil {
		return nil, err
	}
	return &BackupInfo{
		Path:      path,
		Size:      info.Size(),
		Checksum:  sum,
		Encrypted: encrypted,
		CreatedAt: info.ModTime(),
	}, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// calculateChecksum calculates the SHA-256 checksum of a file.
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
