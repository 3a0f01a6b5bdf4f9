// Package wal 提供 append-only 的 JSON Write-Ahead Log。
// 每筆紀錄一行 JSON；Append 先寫入緩衝，Flush 才真正刷入硬碟，
// 讓呼叫端自行決定 fsync 的時機 (通常是每筆提交一次)。
package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 常用的檔案權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀)
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫) - 適用於機密檔
	FileModePrivate fs.FileMode = 0600
)

// WAL append-only 日誌檔
type WAL struct {
	file *os.File
	buf  *bufio.Writer
	mu   sync.Mutex
}

// New 開啟或建立一個 WAL 檔案
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func New(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModeReadOnly)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Append 將一筆紀錄編碼進寫入緩衝
// 資料尚未落盤，需搭配 Flush 使用
func (w *WAL) Append(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return json.NewEncoder(w.buf).Encode(v)
}

// Flush 將緩衝內容寫入檔案並 fsync (關鍵！提交點)
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close 刷入並關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Close()
}

// ReadAll 從檔頭逐筆讀取所有紀錄
// callback 逐筆接收 raw JSON，避免一次將所有資料載入記憶體
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 先把緩衝內容落盤，確保讀得到
	if err := w.flushLocked(); err != nil {
		return err
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
	return nil
}
