package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		backslash bool
		want      []string
	}{
		{
			name:   "simple statements",
			script: "SET FOREIGN_KEY_CHECKS=0;\nDROP TABLE IF EXISTS `a`;\n",
			want:   []string{"SET FOREIGN_KEY_CHECKS=0", "DROP TABLE IF EXISTS `a`"},
		},
		{
			name:   "semicolon inside string",
			script: "INSERT INTO `notes` VALUES ('a;b');INSERT INTO `notes` VALUES ('c');",
			want:   []string{"INSERT INTO `notes` VALUES ('a;b')", "INSERT INTO `notes` VALUES ('c')"},
		},
		{
			name:   "doubled quote",
			script: "INSERT INTO t VALUES ('O''Neil; ward');",
			want:   []string{"INSERT INTO t VALUES ('O''Neil; ward')"},
		},
		{
			name:      "backslash escape",
			script:    `INSERT INTO t VALUES ('it\'s; fine');`,
			backslash: true,
			want:      []string{`INSERT INTO t VALUES ('it\'s; fine')`},
		},
		{
			name:   "backslash is literal without escapes",
			script: `INSERT INTO t VALUES ('C:\');SELECT 1;`,
			want:   []string{`INSERT INTO t VALUES ('C:\')`, "SELECT 1"},
		},
		{
			name:   "comments dropped",
			script: "-- Backup: b-1\n-- Table: a\nCREATE TABLE a (id int); /* trailing; */\nSELECT 1",
			want:   []string{"CREATE TABLE a (id int)", "SELECT 1"},
		},
		{
			name:   "comment markers inside strings kept",
			script: "INSERT INTO t VALUES ('-- not a comment', '/* nor this */');",
			want:   []string{"INSERT INTO t VALUES ('-- not a comment', '/* nor this */')"},
		},
		{
			name:   "quoted identifiers",
			script: "CREATE TABLE \"we;ird\" (`c;ol` int);",
			want:   []string{"CREATE TABLE \"we;ird\" (`c;ol` int)"},
		},
		{
			name:   "empty statements skipped",
			script: ";;\n;  ;",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script, tt.backslash))
		})
	}
}

func TestStatementScanner_LargeInput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		b.WriteString("INSERT INTO `patients` VALUES (1, 'a;b');\n")
	}

	scanner := NewStatementScanner(strings.NewReader(b.String()), true)
	count := 0
	for scanner.Scan() {
		count++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 5000, count)
	assert.False(t, scanner.Scan())
}
