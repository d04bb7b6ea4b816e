// Package pipeline describes what a render pass draws: the shaders, the
// ordered drawable items and the CPU-side vertex data behind them.
//
// Three kinds of item are supported:
//
//   - built-in geometry ([GeometryRectangle], [GeometryTriangle],
//     [GeometryPlane], [GeometryCube]) generated into a raw float buffer
//     with a fixed layout
//   - loaded models, given as vertex and index arrays
//   - raw vertex buffers described by a format string such as
//     "float3;float3;float2"
//
// Every item decodes into a list of [Triangle]s with fully populated
// [Vertex] records:
//
//	item := &pipeline.Item{Type: pipeline.ItemGeometry, Geometry: pipeline.NewGeometry(pipeline.GeometryCube)}
//	tris, err := item.Triangles()
//
// WGSL has no geometry stage, so geometry shaders are Go values
// implementing [GeometryShader]. Their output strips are expanded with
// [ExpandStrip].
package pipeline
