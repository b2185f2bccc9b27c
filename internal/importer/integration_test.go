package importer_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmraya/hybridtm/internal/embed"
	"github.com/rmraya/hybridtm/internal/engine"
	"github.com/rmraya/hybridtm/internal/importer"
	"github.com/rmraya/hybridtm/internal/store"
	"github.com/rmraya/hybridtm/internal/xliff"
)

const bilingualDoc = `<?xml version="1.0"?>
<xliff version="2.0" srcLang="en" trgLang="es">
 <file id="f1" original="demo.xlf">
  <unit id="u1">
   <segment state="translated">
    <source>Save the settings</source>
    <target>Guardar la configuración</target>
   </segment>
   <segment state="translated">
    <source>Then restart the application</source>
    <target>Luego reinicie la aplicación</target>
   </segment>
  </unit>
  <unit id="u2">
   <segment state="final">
    <source>Settings saved</source>
    <target>Configuración guardada</target>
   </segment>
  </unit>
 </file>
</xliff>`

func runImport(t *testing.T, eng *engine.Engine, docPath string) int {
	t.Helper()
	res, err := xliff.Ingest(context.Background(), docPath, xliff.Options{ExtractMetadata: true})
	require.NoError(t, err)

	imp := importer.New(eng,
		importer.WithBatchSize(3),
		importer.WithObserver(importer.NopObserver{}),
		importer.WithLogger(slog.Default()))
	processed, err := imp.Run(context.Background(), res.Path, res.Count)
	require.NoError(t, err)
	return processed
}

func TestImportXLIFF_EndToEnd(t *testing.T) {
	ctx := context.Background()

	st, err := store.OpenOrCreate(ctx, t.TempDir())
	require.NoError(t, err)
	eng, err := engine.New(ctx, "it", st, embed.NewStaticEmbedder(), slog.Default())
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	docPath := filepath.Join(t.TempDir(), "demo.xlf")
	require.NoError(t, os.WriteFile(docPath, []byte(bilingualDoc), 0o644))

	processed := runImport(t, eng, docPath)
	// u1: two segment pairs plus a merged pair; u2: one pair.
	assert.Equal(t, 8, processed)

	count, err := eng.EntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)

	// The imported pair is searchable.
	matches, err := eng.SemanticTranslationSearch(ctx, "Save the settings", "en", "es", 50, 3, engine.SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Guardar la configuración", matches[0].Target.PureText)

	// Importing the same document again changes nothing: upsert by ID.
	runImport(t, eng, docPath)
	count, err = eng.EntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)
}
