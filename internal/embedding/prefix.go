package embedding

// EncodeDocument applies the configured document prefix, if any, before the
// caller hands text to Embed/EmbedBatch. The convention must be applied
// consistently on both the write and read paths (SPEC_FULL.md §4.A); callers
// should route all document-side encoding through this helper rather than
// prefixing ad hoc.
func EncodeDocument(cfg Config, text string) string {
	if !cfg.UsePrefixes {
		return text
	}
	return cfg.DocumentPrefix + text
}

// EncodeQuery applies the configured query prefix, if any.
func EncodeQuery(cfg Config, text string) string {
	if !cfg.UsePrefixes {
		return text
	}
	return cfg.QueryPrefix + text
}

// EncodeDocumentBatch applies EncodeDocument across a batch.
func EncodeDocumentBatch(cfg Config, texts []string) []string {
	if !cfg.UsePrefixes {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = cfg.DocumentPrefix + t
	}
	return out
}
