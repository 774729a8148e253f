// Package repo2pdf composes a source repository into a single
// rendering-safe Markdown document plus the renderer configuration needed
// to turn it into a PDF. The composer walks the repository, classifies
// every file, normalizes code into bounded fenced chunks, rewrites
// Markdown prose so images resolve locally, substitutes emoji with cached
// raster assets, and emits a manifest of what went in and what was
// skipped. The output never requires network access to render.
package repo2pdf
