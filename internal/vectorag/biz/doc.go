// Package biz 提供检索服务的业务逻辑层。
//
// 该包采用分层架构，将业务逻辑拆分为以下组件：
//   - Chunker: 负责文档切分（重叠滑动窗口）
//   - Embedder: 负责批量嵌入（保持输入顺序）
//   - Synthesizer: 负责基于检索结果的答案合成（失败时降级）
//   - Service: 组合以上组件，提供统一的服务接口
package biz
