// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package embedding 提供文本嵌入抽象与确定性回退实现。

# 核心接口/类型

  - Embedder — 统一嵌入接口（Encode / EncodeAll / Name）
  - Provider — 外部嵌入服务需满足的窄契约（EmbedQuery / EmbedDocuments）
  - HashingEmbedder — 确定性哈希词袋嵌入器，零依赖回退实现
  - ProviderEmbedder — 将外部 Provider 适配为 Embedder

余弦相似度辅助函数对零向量与维度不匹配的输入恒返回 0.0，
保证下游打分运算不会产生 NaN。
*/
package embedding
