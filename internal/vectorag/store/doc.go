// Package store 提供检索服务的向量存储层。
//
// 该包定义了向量存储的接口抽象和具体实现，
// 支持文档块的写入、相似度检索和统计功能。
package store
