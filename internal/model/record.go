package model

import "time"

// DownloadRecord tracks one archive fetched from the ERP table. Created once,
// never updated.
type DownloadRecord struct {
	Identity
	Filename     string    `json:"filename"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// DocumentRecord tracks one ingested invoice document and its raw content.
type DocumentRecord struct {
	Identity
	Content      string    `json:"xml_content"`
	DownloadedAt time.Time `json:"downloaded_at"`
}
