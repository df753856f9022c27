// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package extract 从自由文本中抽取因果三元组 (cause, effect, confidence)。

# 三种抽取方式

  - rule — 句级因果表面模式匹配（"causes"、"leads to"、"because of"、
    "if ... then"、被动 "is caused by" 等），零外部依赖
  - llm — 分块后向外部生成服务发起结构化抽取请求，容错解析 JSON
    （经 jsonrepair 修复单引号 / 尾逗号 / 未加引号键等常见缺陷）
  - hybrid — 两者取并集，键冲突时规则结果优先（默认）

抽取严格 best-effort：单句 / 单块的失败只记日志并跳过，Extract
永不向调用方返回错误。跨度会做归一化（小写、空白折叠、尾部标点
与前导虚词剥离）并校验长度。
*/
package extract
