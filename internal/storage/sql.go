package storage

import (
	_ "embed"
)

const (
	// applicationID tags SQLite files written by the columnar store ("IQRC")
	applicationID = 0x49515243

	// layoutVersion is stored in PRAGMA user_version
	layoutVersion = 1

	// sqliteMagic is the header of every SQLite 3 database file
	sqliteMagic = "SQLite format 3\x00"
)

// Column names and element types of a recording group
const (
	columnReal       = "real"
	columnImag       = "imag"
	columnTimestamps = "timestamps"

	dtypeFloat64   = "<f8"
	dtypeInt64     = "<i8"
	dtypeString    = "str"
	dtypeTimestamp = "|S26"
)

// Attribute names of a recording group
const (
	attrCenterFreq     = "center_freq"
	attrSampleRate     = "sample_rate"
	attrFreqCorrection = "freq_correction"
	attrGain           = "gain"
)

//go:embed schema.sql
var initSchemaSQL string

const countTablesSQL = `
SELECT COUNT(*)
FROM sqlite_master
WHERE type = 'table'`

const selectDatasetsSQL = `
SELECT 
    name,
    dtype,
    item_size,
    length,
    max_length
FROM datasets
WHERE 
    group_name = ?
ORDER BY name`

const insertDatasetSQL = `
INSERT INTO datasets (group_name,
                      name,
                      dtype,
                      item_size,
                      length,
                      max_length)
VALUES (?, ?, ?, ?, 0, NULL)`

const growDatasetSQL = `
UPDATE datasets 
SET length = length + ? 
WHERE 
    group_name = ? 
    AND name = ?`

const insertChunkSQL = `
INSERT INTO chunks (group_name,
                    dataset,
                    start,
                    count,
                    data)
VALUES (?, ?, ?, ?, ?)`

const insertAttributeSQL = `
INSERT OR IGNORE INTO attributes (group_name,
                                  name,
                                  dtype,
                                  value)
VALUES (?, ?, ?, ?)`

const selectAttributesSQL = `
SELECT 
    name,
    dtype,
    value
FROM attributes
WHERE 
    group_name = ?`

const selectChunksSQL = `
SELECT 
    r.start,
    r.count,
    r.data,
    i.count,
    i.data,
    t.count,
    t.data
FROM chunks r
         JOIN chunks i ON i.group_name = r.group_name AND i.dataset = 'imag' AND i.start = r.start
         JOIN chunks t ON t.group_name = r.group_name AND t.dataset = 'timestamps' AND t.start = r.start
WHERE 
    r.group_name = ?
    AND r.dataset = 'real'
ORDER BY r.start`
